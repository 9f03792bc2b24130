package cast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedReturnsResult(t *testing.T) {
	want := errors.New("refused")
	err := bounded(context.Background(), func() error { return want }, func(error) {
		t.Error("late called for a call that returned in time")
	})
	assert.ErrorIs(t, err, want)
}

func TestBoundedReleasesLateDial(t *testing.T) {
	release := make(chan struct{})
	late := make(chan error, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bounded(ctx, func() error {
		<-release
		return nil
	}, func(err error) { late <- err })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-late:
		t.Fatal("late ran before the call returned")
	default:
	}

	close(release)
	select {
	case err := <-late:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("late never ran for the abandoned call")
	}
}

func TestBoundedWithoutLateHook(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bounded(ctx, func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
