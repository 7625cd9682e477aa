package utils

import (
	"fmt"
	"net/url"
	"time"

	"github.com/srand/espilot/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

type GRPCOptions struct {
	// The interval between PING frames.
	KeepAliveTime *time.Duration `mapstructure:"keep_alive_time"`
	// The timeout for a PING frame to be acknowledged.
	KeepAliveTimeout *time.Duration `mapstructure:"keep_alive_timeout"`
	// Are clients allowed to send keepalive pings without active streams.
	PermitKeepAliveWithoutCalls *bool `mapstructure:"permit_keep_alive_without_calls"`
	// Minimum allowed time between a server receiving successive ping frames without sending any data/header frame.
	PermitKeepAliveTime *time.Duration `mapstructure:"permit_keep_alive_time"`
}

func (o *GRPCOptions) ToServerOptions() []grpc.ServerOption {
	opts := []grpc.ServerOption{}

	serverParameters := keepalive.ServerParameters{}
	enforcePolicy := keepalive.EnforcementPolicy{}

	if o.KeepAliveTime != nil {
		serverParameters.Time = *o.KeepAliveTime
	}

	if o.KeepAliveTimeout != nil {
		serverParameters.Timeout = *o.KeepAliveTimeout
	}

	if o.KeepAliveTime != nil || o.KeepAliveTimeout != nil {
		opts = append(opts, grpc.KeepaliveParams(serverParameters))
	}

	if o.PermitKeepAliveWithoutCalls != nil {
		enforcePolicy.PermitWithoutStream = *o.PermitKeepAliveWithoutCalls
	}

	if o.PermitKeepAliveTime != nil {
		enforcePolicy.MinTime = *o.PermitKeepAliveTime
	}

	if o.PermitKeepAliveWithoutCalls != nil || o.PermitKeepAliveTime != nil {
		opts = append(opts, grpc.KeepaliveEnforcementPolicy(enforcePolicy))
	}

	return opts
}

func (o *GRPCOptions) Log() {
	if o.KeepAliveTime != nil {
		log.Info("  grpc.keep_alive_time =", *o.KeepAliveTime)
	}

	if o.KeepAliveTimeout != nil {
		log.Info("  grpc.keep_alive_timeout =", *o.KeepAliveTimeout)
	}

	if o.PermitKeepAliveWithoutCalls != nil {
		log.Info("  grpc.permit_keep_alive_without_calls =", *o.PermitKeepAliveWithoutCalls)
	}

	if o.PermitKeepAliveTime != nil {
		log.Info("  grpc.permit_keep_alive_time =", *o.PermitKeepAliveTime)
	}
}

// Parses a listen URI such as tcp://:9090 or unix:///run/espilot.sock
// into a network and an address suitable for net.Listen.
func ParseGrpcUrl(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}

	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		host := u.Host
		if u.Port() == "" {
			// Default port is 9090
			host = fmt.Sprintf("%s:9090", u.Host)
		}
		return u.Scheme, host, nil

	case "unix":
		if u.Path == "" {
			return "", "", fmt.Errorf("%w: missing socket path in %s", ErrParse, uri)
		}
		return u.Scheme, u.Path, nil

	default:
		return "", "", fmt.Errorf("%w: unsupported protocol %q", ErrParse, u.Scheme)
	}
}
