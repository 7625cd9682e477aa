package eventservice

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/srand/espilot/pkg/channel"
	"github.com/srand/espilot/pkg/log"
	"github.com/srand/espilot/pkg/utils"
)

type Config struct {
	// Name of the control socket. Generated when empty.
	SocketName string `mapstructure:"socket_name"`

	// Where the control socket is bound: "local" or "network".
	SocketContext channel.Context `mapstructure:"socket_context"`

	// Number of event ranges asked from the hook per payload request.
	RangesPerRequest int `mapstructure:"ranges_per_request"`

	// Interval of the driver and channel loops.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Time given to the payload to exit after SIGTERM before it is killed.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// Time to wait for the channel thread to finish during teardown.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// Time spent draining reports after the payload has exited.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`

	// Defaults for the payload's stdout and stderr files.
	PayloadStdout string `mapstructure:"payload_stdout"`
	PayloadStderr string `mapstructure:"payload_stderr"`

	// Working directory of the payload. Relative output files are
	// placed here as well.
	WorkDir string `mapstructure:"workdir"`

	// Capacity of the inbound message queue.
	QueueSize int `mapstructure:"queue_size"`

	// Longest line accepted from the payload, in bytes.
	MaxLineSize utils.ByteSize `mapstructure:"max_line_size"`

	WireFormat WireFormat `mapstructure:"wire_format"`

	// Called on every state transition, from the goroutine running the
	// process. Must not block.
	OnStateChange func(State) `mapstructure:"-"`
}

func NewConfig() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// Fills in unset values.
func (c *Config) SetDefaults() {
	if c.SocketName == "" {
		c.SocketName = "espilot-" + uuid.NewString()
	}
	if c.SocketContext == "" {
		c.SocketContext = channel.ContextLocal
	}
	if c.RangesPerRequest == 0 {
		c.RangesPerRequest = 1
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 3 * time.Second
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 100 * time.Millisecond
	}
	if c.PayloadStdout == "" {
		c.PayloadStdout = "payload.stdout"
	}
	if c.PayloadStderr == "" {
		c.PayloadStderr = "payload.stderr"
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.MaxLineSize == 0 {
		c.MaxLineSize = 1024 * 1024
	}
	if c.WireFormat == 0 {
		c.WireFormat = WireFormatV1
	}
}

func (c *Config) Validate() error {
	if c.RangesPerRequest <= 0 {
		return errors.New("The number of ranges per request must be greater than zero")
	}

	switch c.SocketContext {
	case channel.ContextLocal, channel.ContextNetwork:
	default:
		return errors.New("The socket context must be either 'local' or 'network'")
	}

	if c.PollInterval < 0 || c.GracePeriod < 0 || c.StopTimeout < 0 || c.DrainTimeout < 0 {
		return errors.New("Intervals and timeouts must not be negative")
	}

	if c.MaxLineSize < 0 {
		return errors.New("The maximum line size must not be negative")
	}

	if c.QueueSize < 0 {
		return errors.New("The queue size must not be negative")
	}

	if c.WireFormat != WireFormatV1 {
		return errors.New("Unsupported wire format")
	}

	return nil
}

func (c *Config) Log() {
	log.Info("Event service configuration:")
	log.Infof("  socket_name = %s", c.SocketName)
	log.Infof("  socket_context = %s", c.SocketContext)
	log.Infof("  ranges_per_request = %d", c.RangesPerRequest)
	log.Infof("  poll_interval = %s", c.PollInterval)
	log.Infof("  grace_period = %s", c.GracePeriod)
	log.Infof("  stop_timeout = %s", c.StopTimeout)
	log.Infof("  drain_timeout = %s", c.DrainTimeout)
	log.Infof("  payload_stdout = %s", c.PayloadStdout)
	log.Infof("  payload_stderr = %s", c.PayloadStderr)
	log.Infof("  workdir = %s", c.WorkDir)
	log.Infof("  queue_size = %d", c.QueueSize)
	log.Infof("  max_line_size = %s", c.MaxLineSize)
	log.Infof("  wire_format = %d", c.WireFormat)
}
