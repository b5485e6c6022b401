package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	gen, err := s.Put(ctx, "k", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	gen, err = s.Put(ctx, "k", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	data, gen, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
	assert.Equal(t, int64(2), gen)
}

func TestSQLiteStoreConditionalPut(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	gen, err := s.PutIfGenerationMatch(ctx, "k", []byte("v1"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	_, err = s.PutIfGenerationMatch(ctx, "k", []byte("again"), 0)
	assert.ErrorIs(t, err, ErrGenerationMismatch)

	gen, err = s.PutIfGenerationMatch(ctx, "k", []byte("v2"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	_, err = s.PutIfGenerationMatch(ctx, "k", []byte("stale"), 1)
	assert.ErrorIs(t, err, ErrGenerationMismatch)

	data, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestSQLiteStoreDeleteAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

	for _, k := range []string{"patient_diaries/patient_A/diary.json", "patient_diaries/patient_B/diary.json", "patient_data/A/chat.json"} {
		_, err := s.Put(ctx, k, []byte("{}"))
		require.NoError(t, err)
	}

	keys, err := s.List(ctx, "patient_diaries/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"patient_diaries/patient_A/diary.json",
		"patient_diaries/patient_B/diary.json",
	}, keys)

	require.NoError(t, s.Delete(ctx, "patient_diaries/patient_A/diary.json"))
	keys, err = s.List(ctx, "patient_diaries/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSQLiteStorePing(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}
