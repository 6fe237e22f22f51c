package nodestate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingRecordIsUninitialized(t *testing.T) {
	t.Parallel()
	store := NewStore(t.TempDir())

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, rec.Phase)
}

func TestTransition_LeaderPath(t *testing.T) {
	t.Parallel()
	store := NewStore(t.TempDir())

	for _, phase := range []Phase{Installed, Initialized, Networked, Ready} {
		require.NoError(t, store.Transition(phase, "leader"))
	}

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Ready, rec.Phase)
	assert.Equal(t, "leader", rec.Role)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestTransition_WorkerPath(t *testing.T) {
	t.Parallel()
	store := NewStore(t.TempDir())

	for _, phase := range []Phase{Installed, Joined, Ready} {
		require.NoError(t, store.Transition(phase, "worker"))
	}

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Ready, rec.Phase)
}

func TestTransition_SamePhaseIsNoOp(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Transition(Installed, "worker"))
	first, err := store.Load()
	require.NoError(t, err)

	require.NoError(t, store.Transition(Installed, "worker"))
	second, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, first.UpdatedAt, second.UpdatedAt, "re-asserting a phase must not rewrite the record")
}

func TestTransition_InvalidEdgesRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from []Phase
		to   Phase
	}{
		{"skip install", nil, Initialized},
		{"joined leader mixup", []Phase{Installed, Initialized}, Joined},
		{"backwards", []Phase{Installed, Joined}, Installed},
		{"ready is terminal", []Phase{Installed, Joined, Ready}, Networked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := NewStore(t.TempDir())
			for _, phase := range tt.from {
				require.NoError(t, store.Transition(phase, "worker"))
			}
			err := store.Transition(tt.to, "worker")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid lifecycle transition")
		})
	}
}

func TestLoad_CorruptRecord(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{{not yaml"), 0o644))

	_, err := NewStore(dir).Load()
	assert.Error(t, err)
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Transition(Installed, "worker"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
