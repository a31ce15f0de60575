package store

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	joy "github.com/lessisbetter/json-joy-rs-sub002"
	"github.com/lessisbetter/json-joy-rs-sub002/joy_errors"
	"github.com/lessisbetter/json-joy-rs-sub002/patch"
)

const sid = uint64(80000)

func open(t *testing.T, dir string) *Store {
	s, err := Open(dir, Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	return s
}

func TestStore_CreateCommitReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := open(t, dir)

	m, err := s.Create(ctx, "doc1", map[string]any{"n": 1}, sid)
	require.NoError(t, err)
	_, err = s.Create(ctx, "doc1", nil, sid)
	assert.ErrorIs(t, err, joy_errors.ErrDocumentExists)

	for _, target := range []any{
		map[string]any{"n": 2},
		map[string]any{"n": 2, "s": "hi"},
		map[string]any{"s": "hey"},
	} {
		p, err := joy.DiffModel(m, target)
		require.NoError(t, err)
		require.NoError(t, m.Apply(p))
		require.NoError(t, s.Commit(ctx, "doc1", p))
	}
	size, err := s.LogSize("doc1")
	require.NoError(t, err)
	assert.Greater(t, size, 1)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), joy_errors.ErrClosed)

	s = open(t, dir)
	defer s.Close()
	got, err := s.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"s": "hey"}, got.View())

	require.NoError(t, s.Compact(ctx, "doc1"))
	size, err = s.LogSize("doc1")
	require.NoError(t, err)
	assert.Zero(t, size)
	got, err = s.Load(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"s": "hey"}, got.View())
}

func TestStore_CommitRejectsBadPatch(t *testing.T) {
	ctx := context.Background()
	s := open(t, t.TempDir())
	defer s.Close()
	m, err := s.Create(ctx, "d", map[string]any{}, sid)
	require.NoError(t, err)
	root, _ := m.Root()

	b := patch.NewBuilder(m.Clock(sid))
	b.InsStr(root, root, "x")
	assert.ErrorIs(t, s.Commit(ctx, "d", b.Flush()), joy_errors.ErrApplyFailure)
	assert.ErrorIs(t, s.Commit(ctx, "missing", b.Flush()), joy_errors.ErrDocumentUnknown)
	size, err := s.LogSize("d")
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestStore_DocsAndDrop(t *testing.T) {
	ctx := context.Background()
	s := open(t, t.TempDir())
	for _, id := range []string{"b", "a", "c"} {
		_, err := s.Create(ctx, id, []any{id}, sid)
		require.NoError(t, err)
	}
	ids, err := s.Docs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, s.Drop(ctx, "b"))
	assert.ErrorIs(t, s.Drop(ctx, "b"), joy_errors.ErrDocumentUnknown)
	_, err = s.Load(ctx, "b")
	assert.ErrorIs(t, err, joy_errors.ErrDocumentUnknown)
	ids, err = s.Docs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	require.NoError(t, s.Close())
	_, err = s.Docs()
	assert.ErrorIs(t, err, joy_errors.ErrClosed)
	_, err = s.Load(ctx, "a")
	assert.ErrorIs(t, err, joy_errors.ErrClosed)
}

func TestStore_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := open(t, dir)
	_, err := s.Create(ctx, "d", "text", sid)
	require.NoError(t, err)
	val, found, err := s.get(SnapshotKey("d"))
	require.NoError(t, err)
	require.True(t, found)
	val[len(val)-1] ^= 0xff
	require.NoError(t, s.db.Set(SnapshotKey("d"), val, pebble.Sync))
	s.cache.Purge()
	_, err = s.Load(ctx, "d")
	assert.ErrorIs(t, err, joy_errors.ErrInvalidModelBinary)
	require.NoError(t, s.Close())
}

func TestLogMerger(t *testing.T) {
	r1 := patch.AppendRecord(nil, []byte{1, 2})
	r2 := patch.AppendRecord(nil, []byte{3})
	r3 := patch.AppendRecord(nil, []byte{4, 5, 6})

	vm, err := newLogMerger(LogKey("x"), r2)
	require.NoError(t, err)
	require.NoError(t, vm.MergeNewer(r3))
	require.NoError(t, vm.MergeOlder(r1))
	out, _, err := vm.Finish(true)
	require.NoError(t, err)

	recs, err := patch.LogRecords(out)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2}, {3}, {4, 5, 6}}, recs)
}

func TestKeys(t *testing.T) {
	id, ok := DocID(SnapshotKey("doc"))
	assert.True(t, ok)
	assert.Equal(t, "doc", id)
	id, ok = DocID(LogKey("doc"))
	assert.True(t, ok)
	assert.Equal(t, "doc", id)
	_, ok = DocID([]byte{'X', 'y'})
	assert.False(t, ok)
	lo, hi := PrefixRange(SnapshotPrefix)
	assert.Equal(t, []byte{'M'}, lo)
	assert.Equal(t, []byte{'N'}, hi)
}

func TestPebbleCollector(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()
	assert.Equal(t, 19, testutil.CollectAndCount(NewPebbleCollector(s.db)))
}
