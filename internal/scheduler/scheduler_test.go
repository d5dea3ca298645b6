package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReloader struct {
	calls atomic.Int32
}

func (c *countingReloader) Reload(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New("every now and then", &countingReloader{})
	assert.Error(t, err)

	_, err = New("@every 1h", nil)
	assert.Error(t, err)
}

func TestRun_ReloadsUntilCancelled(t *testing.T) {
	target := &countingReloader{}
	r, err := New("@every 1s", target)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return target.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
