package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Port = 0 // случайный свободный порт

	ctx, cancel := context.WithCancel(context.Background())
	c := setupTestContainer(t, ctx, cfg)

	done := make(chan error, 1)
	go func() { done <- run(c) }()

	// даём всем горутинам подняться, затем просим остановиться
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancel")
	}
}
