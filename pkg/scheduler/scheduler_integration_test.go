package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/kftoggle/pkg/domain"
	"github.com/umputun/kftoggle/pkg/journal"
	"github.com/umputun/kftoggle/pkg/store"
)

const killFeedPath = "/profiles/AC/Settings/KillFeed.json"

func TestIntegration_EndToEnd(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	orig := `{"m_Enable": 1, "other": "x"}`
	require.NoError(t, afero.WriteFile(fs, killFeedPath, []byte(orig), 0o644))

	s := NewScheduler(Params{
		Store:    store.NewFileStore(fs, killFeedPath),
		Clock:    fixedClock(disabledTime),
		Location: time.UTC,
		Path:     killFeedPath,
	})

	res := s.Reconcile(ctx)
	require.NoError(t, res.Err)
	assert.True(t, res.Written)

	data, err := afero.ReadFile(fs, killFeedPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"m_Enable": 0, "other": "x"}`, string(data))

	backup, err := afero.ReadFile(fs, killFeedPath+".backup")
	require.NoError(t, err)
	assert.Equal(t, orig, string(backup))
}

func TestIntegration_Idempotent(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, killFeedPath, []byte(`{"m_Enable": 1}`), 0o644))

	s := NewScheduler(Params{Store: store.NewFileStore(fs, killFeedPath), Clock: fixedClock(disabledTime), Location: time.UTC})

	first := s.Reconcile(ctx)
	require.NoError(t, first.Err)
	assert.True(t, first.Written)
	afterFirst, err := afero.ReadFile(fs, killFeedPath)
	require.NoError(t, err)
	backupFirst, err := afero.ReadFile(fs, killFeedPath+".backup")
	require.NoError(t, err)

	second := s.Reconcile(ctx)
	require.NoError(t, second.Err)
	assert.False(t, second.Written)

	afterSecond, err := afero.ReadFile(fs, killFeedPath)
	require.NoError(t, err)
	assert.Equal(t, string(afterFirst), string(afterSecond))
	backupSecond, err := afero.ReadFile(fs, killFeedPath+".backup")
	require.NoError(t, err)
	assert.Equal(t, string(backupFirst), string(backupSecond), "backup untouched by no-op cycle")
}

func TestIntegration_FileDeletedAndRestored(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, killFeedPath, []byte(`{"m_Enable": 1}`), 0o644))

	s := NewScheduler(Params{Store: store.NewFileStore(fs, killFeedPath), Clock: fixedClock(disabledTime), Location: time.UTC})
	require.NoError(t, s.Reconcile(ctx).Err)
	last, ok := s.LastWritten()
	require.True(t, ok)
	assert.Equal(t, domain.Disabled, last)

	require.NoError(t, fs.Remove(killFeedPath))
	res := s.Reconcile(ctx)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, domain.ErrNotFound)
	assert.False(t, res.Written)
	last, ok = s.LastWritten()
	require.True(t, ok)
	assert.Equal(t, domain.Disabled, last, "in-memory state unchanged")

	// restored with a stale value, stale in-memory state must not prevent the write
	require.NoError(t, afero.WriteFile(fs, killFeedPath, []byte(`{"m_Enable": 1, "extra": [1, 2]}`), 0o644))
	res = s.Reconcile(ctx)
	require.NoError(t, res.Err)
	assert.True(t, res.Written)
	data, err := afero.ReadFile(fs, killFeedPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"m_Enable": 0, "extra": [1, 2]}`, string(data))
}

func TestIntegration_MalformedFileNotTouched(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	bad := `{"m_Enable": 1,, }`
	require.NoError(t, afero.WriteFile(fs, killFeedPath, []byte(bad), 0o644))

	s := NewScheduler(Params{Store: store.NewFileStore(fs, killFeedPath), Clock: fixedClock(disabledTime), Location: time.UTC})
	res := s.Reconcile(ctx)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, domain.ErrMalformed)

	data, err := afero.ReadFile(fs, killFeedPath)
	require.NoError(t, err)
	assert.Equal(t, bad, string(data))
	exists, err := afero.Exists(fs, killFeedPath+".backup")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIntegration_Journal(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, killFeedPath, []byte(`{"m_Enable": 1}`), 0o644))

	j, err := journal.New(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	now := disabledTime
	s := NewScheduler(Params{Store: store.NewFileStore(fs, killFeedPath), Journal: j, Path: killFeedPath,
		Clock: ClockFunc(func() time.Time { return now }), Location: time.UTC})

	require.NoError(t, s.Reconcile(ctx).Err)
	require.NoError(t, s.Reconcile(ctx).Err)
	now = time.Date(2025, 6, 7, 23, 0, 0, 0, time.UTC)
	require.NoError(t, s.Reconcile(ctx).Err)

	recent, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.Enabled, recent[0].To)
	assert.Equal(t, domain.Disabled, recent[1].To)
	assert.Equal(t, killFeedPath, recent[1].Path)
}
