package main

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/srand/espilot/pkg/channel"
	"github.com/srand/espilot/pkg/eventservice"
	"github.com/srand/espilot/pkg/hooks"
	"github.com/srand/espilot/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	v := viper.New()
	v.Set("job_file", "/data/job.json.gz")
	v.Set("ranges_per_request", "4")
	v.Set("poll_interval", "250ms")
	v.Set("socket_context", "network")
	v.Set("socket_name", "127.0.0.1:0")
	v.Set("listen_http", "tcp://:8080,tcp://:8081")
	v.Set("max_line_size", "64KiB")
	v.Set("grpc", map[string]any{"keep_alive_time": "30s"})

	config, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "/data/job.json.gz", config.JobFile)
	assert.Equal(t, 4, config.RangesPerRequest)
	assert.Equal(t, 250*time.Millisecond, config.PollInterval)
	assert.Equal(t, channel.ContextNetwork, config.SocketContext)
	assert.Equal(t, []string{"tcp://:8080", "tcp://:8081"}, config.ListenHttp)
	assert.Equal(t, utils.ByteSize(64*1024), config.MaxLineSize)
	require.NotNil(t, config.Grpc.KeepAliveTime)
	assert.Equal(t, 30*time.Second, *config.Grpc.KeepAliveTime)

	assert.Equal(t, 3*time.Second, config.GracePeriod)
	assert.Equal(t, eventservice.WireFormatV1, config.WireFormat)
	assert.NoError(t, config.Validate())
}

func TestValidateConfig(t *testing.T) {
	config, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Error(t, config.Validate())

	config.JobFile = "job.json"
	assert.NoError(t, config.Validate())

	config.ListenGrpc = []string{"udp://:9090"}
	assert.Error(t, config.Validate())
}

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/job.json", []byte(`{
		"payload": {"payload": "exit 0"},
		"event_ranges": [{"eventRangeID": "1-2-3-4-5", "startEvent": 1, "lastEvent": 1}]
	}`), 0644))

	config, err := LoadConfig(viper.New())
	require.NoError(t, err)
	config.JobFile = "/job.json"
	config.StatusDump = "/out/status.json"
	config.WorkDir = t.TempDir()
	config.PollInterval = 50 * time.Millisecond
	require.NoError(t, config.Validate())

	require.NoError(t, run(context.Background(), fs, config))

	dump, err := hooks.ReadStatusDump(fs, "/out/status.json")
	require.NoError(t, err)
	assert.Equal(t, 1, dump.Remaining)
	assert.Empty(t, dump.Ranges)
}

func TestRunFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/job.json", []byte(`{"payload": {"payload": "exit 7"}, "event_ranges": []}`), 0644))

	config, err := LoadConfig(viper.New())
	require.NoError(t, err)
	config.JobFile = "/job.json"
	config.WorkDir = t.TempDir()

	err = run(context.Background(), fs, config)
	assert.ErrorIs(t, err, eventservice.ErrChildProcess)
}
