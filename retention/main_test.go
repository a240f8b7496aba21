package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/topstories/backend/internal/config"
)

type stubPinger struct {
	failures int
	calls    int
}

func (p *stubPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

type stubPurger struct {
	maxAge    time.Duration
	batchSize int
	deleted   int64
	err       error
}

func (p *stubPurger) DeleteOlderThan(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	p.maxAge = maxAge
	p.batchSize = batchSize
	return p.deleted, p.err
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWaitForClusterRetries(t *testing.T) {
	p := &stubPinger{failures: 2}
	require.NoError(t, waitForCluster(context.Background(), quiet(), p, time.Millisecond))
	require.Equal(t, 3, p.calls)
}

func TestWaitForClusterGivesUp(t *testing.T) {
	p := &stubPinger{failures: 1000}
	err := waitForCluster(context.Background(), quiet(), p, time.Microsecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, connectAttempts, p.calls)
}

func TestWaitForClusterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitForCluster(ctx, quiet(), &stubPinger{failures: 1000}, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunOnceUsesConfig(t *testing.T) {
	cfg := &config.Retention{MaxAge: 36 * time.Hour, BatchSize: 250}
	p := &stubPurger{deleted: 7}

	require.Equal(t, int64(7), runOnce(context.Background(), quiet(), p, cfg))
	require.Equal(t, 36*time.Hour, p.maxAge)
	require.Equal(t, 250, p.batchSize)
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	cfg := &config.Retention{MaxAge: time.Hour, BatchSize: 10}
	p := &stubPurger{err: errors.New("cluster red")}

	require.Zero(t, runOnce(context.Background(), quiet(), p, cfg))
}
