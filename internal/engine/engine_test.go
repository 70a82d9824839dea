package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maemio/maemio/internal/config"
	"github.com/maemio/maemio/internal/index"
)

func testConfig() config.Config {
	cfg := config.Default(2)
	cfg.ClockSyncIntervalMS = 5
	cfg.GCIntervalMS = 5
	cfg.RetryCap = 8
	return cfg
}

func TestEngineExecuteCommitsAndReads(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)

	var id RecordID
	err = e.Execute(0, func(tx *Tx) error {
		var err error
		id, err = tx.Create([]byte("hello"))
		return err
	})
	require.NoError(t, err)

	// Read back on the committing worker: per-worker clocks are only
	// loosely synchronized, so another worker's snapshot taken within the
	// same epoch can still sit below this commit's timestamp.
	err = e.Execute(0, func(tx *Tx) error {
		v, err := tx.Read(id)
		require.NoError(t, err)
		require.Equal(t, []byte("hello"), v)
		return nil
	})
	require.NoError(t, err)
}

func TestEngineRejectsExecuteAfterShutdown(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)

	require.NoError(t, e.StartMaintenance(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	err = e.Execute(0, func(tx *Tx) error { return nil })
	require.ErrorIs(t, err, ErrShutdown)
}

func TestEngineCreateIndexRejectsDuplicateID(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)

	require.NoError(t, e.CreateIndex(1, "primary", index.KindBTree))
	require.Error(t, e.CreateIndex(1, "primary-again", index.KindHash))

	idx, ok := e.Index(1)
	require.True(t, ok)
	require.NotNil(t, idx)
}

func TestEngineMaintenanceRunsAndStopsCleanly(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)

	require.NoError(t, e.StartMaintenance(context.Background()))
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
}
