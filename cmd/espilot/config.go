package main

import (
	"errors"

	"github.com/spf13/viper"
	"github.com/srand/espilot/pkg/eventservice"
	"github.com/srand/espilot/pkg/log"
	"github.com/srand/espilot/pkg/utils"
)

type Config struct {
	eventservice.Config `mapstructure:",squash"`

	Grpc utils.GRPCOptions `mapstructure:"grpc"`

	// Job description with the payload and its event ranges.
	JobFile string `mapstructure:"job_file"`

	// Where to write the event status report. Optional.
	StatusDump string `mapstructure:"status_dump"`

	// Addresses to serve metrics and range status on.
	// Ex: tcp://127.0.0.1:8080
	ListenHttp []string `mapstructure:"listen_http"`

	// Addresses to serve gRPC health checks on.
	// Ex: tcp://127.0.0.1:9090
	ListenGrpc []string `mapstructure:"listen_grpc"`

	// Log verbosity level: 0 = info, 1 = debug, 2 = trace
	Verbosity int `mapstructure:"verbosity"`
}

func LoadConfig(v *viper.Viper) (*Config, error) {
	config := &Config{}

	if err := utils.UnmarshalConfig(v, config); err != nil {
		return nil, err
	}

	config.SetDefaults()
	return config, nil
}

func (c *Config) Validate() error {
	if c.JobFile == "" {
		return errors.New("A job description file is required")
	}

	for _, uri := range c.ListenHttp {
		if _, err := utils.ParseHttpUrl(uri); err != nil {
			return err
		}
	}

	for _, uri := range c.ListenGrpc {
		if _, _, err := utils.ParseGrpcUrl(uri); err != nil {
			return err
		}
	}

	return c.Config.Validate()
}

func (c *Config) Log() {
	log.Info("Pilot configuration:")
	log.Infof("  job_file = %s", c.JobFile)
	log.Infof("  status_dump = %s", c.StatusDump)
	log.Infof("  listen_http = %v", c.ListenHttp)
	log.Infof("  listen_grpc = %v", c.ListenGrpc)
	c.Grpc.Log()
	c.Config.Log()
}
