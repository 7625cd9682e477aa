package eventservice

import (
	"strings"
	"testing"
	"time"

	"github.com/srand/espilot/pkg/channel"
	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	c := NewConfig()
	assert.True(t, strings.HasPrefix(c.SocketName, "espilot-"))
	assert.Equal(t, channel.ContextLocal, c.SocketContext)
	assert.Equal(t, 1, c.RangesPerRequest)
	assert.Equal(t, time.Second, c.PollInterval)
	assert.Equal(t, 3*time.Second, c.GracePeriod)
	assert.Equal(t, "payload.stdout", c.PayloadStdout)
	assert.Equal(t, "payload.stderr", c.PayloadStderr)
	assert.Equal(t, WireFormatV1, c.WireFormat)
	assert.NoError(t, c.Validate())

	other := NewConfig()
	assert.NotEqual(t, c.SocketName, other.SocketName)
}

func TestConfigValidate(t *testing.T) {
	c := NewConfig()
	c.RangesPerRequest = -1
	assert.Error(t, c.Validate())

	c = NewConfig()
	c.SocketContext = "remote"
	assert.Error(t, c.Validate())

	c = NewConfig()
	c.GracePeriod = -time.Second
	assert.Error(t, c.Validate())

	c = NewConfig()
	c.WireFormat = 2
	assert.Error(t, c.Validate())
}
