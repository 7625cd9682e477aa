//go:build !windows

package utils

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalContext(t *testing.T) {
	ctx, cancel := SignalContext(context.Background(), syscall.SIGUSR1)
	defer cancel()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
		assert.Contains(t, context.Cause(ctx).Error(), "caught signal")
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled")
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext(context.Background())
	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}
