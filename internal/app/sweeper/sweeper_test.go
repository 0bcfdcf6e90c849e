package sweeper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/pkg/logger"
)

type fakeQuarantineSweeper struct {
	removed int
	err     error
	calls   int
}

func (f *fakeQuarantineSweeper) Sweep() (int, error) {
	f.calls++
	return f.removed, f.err
}

type fakeBackupSweeper struct {
	removed int
	err     error
	calls   int
}

func (f *fakeBackupSweeper) Cleanup(context.Context) (int, error) {
	f.calls++
	return f.removed, f.err
}

func TestRunOnce(t *testing.T) {
	t.Run("runs both halves", func(t *testing.T) {
		q := &fakeQuarantineSweeper{removed: 3}
		b := &fakeBackupSweeper{removed: 2}
		s := New(q, b, "30 3 * * *", logger.NewNop())

		require.NoError(t, s.RunOnce(context.Background()))
		assert.Equal(t, 1, q.calls)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("quarantine failure stops the sweep", func(t *testing.T) {
		q := &fakeQuarantineSweeper{err: errors.New("dir unreadable")}
		b := &fakeBackupSweeper{}
		s := New(q, b, "30 3 * * *", logger.NewNop())

		err := s.RunOnce(context.Background())
		require.Error(t, err)
		assert.Zero(t, b.calls)
	})

	t.Run("nil collaborators are skipped", func(t *testing.T) {
		s := New(nil, nil, "30 3 * * *", logger.NewNop())
		assert.NoError(t, s.RunOnce(context.Background()))
	})
}

func TestStart(t *testing.T) {
	t.Run("rejects an invalid schedule", func(t *testing.T) {
		s := New(&fakeQuarantineSweeper{}, nil, "not a cron spec", logger.NewNop())
		assert.Error(t, s.Start())
	})

	t.Run("accepts a valid schedule and stops cleanly", func(t *testing.T) {
		s := New(&fakeQuarantineSweeper{}, &fakeBackupSweeper{}, "30 3 * * *", logger.NewNop())
		require.NoError(t, s.Start())
		s.Stop()
	})
}
