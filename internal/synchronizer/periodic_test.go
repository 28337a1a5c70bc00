package synchronizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicFetcherCallsSyncOnTick(t *testing.T) {
	calls := 0
	f := NewPeriodicFetcher(5*time.Millisecond, func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.Start(ctx)

	require.Eventually(t, func() bool { return calls >= 2 }, time.Second, time.Millisecond)
	cancel()
	f.Stop()
}

func TestPeriodicFetcherInvokesOnErr(t *testing.T) {
	var gotErr error
	boom := errors.New("boom")
	f := NewPeriodicFetcher(5*time.Millisecond, func(ctx context.Context) error {
		return boom
	}, func(err error) { gotErr = err })

	ctx, cancel := context.WithCancel(context.Background())
	f.Start(ctx)

	require.Eventually(t, func() bool { return gotErr != nil }, time.Second, time.Millisecond)
	assert.ErrorIs(t, gotErr, boom)
	cancel()
	f.Stop()
}

func TestPeriodicFetcherStopIsIdempotent(t *testing.T) {
	f := NewPeriodicFetcher(time.Hour, func(ctx context.Context) error { return nil }, nil)
	f.Start(context.Background())
	f.Stop()
	assert.NotPanics(t, func() { f.Stop() })
}
