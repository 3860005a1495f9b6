package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.StartRun(&Run{}))
	assert.FileExists(t, path)
}

func TestListRuns_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ListRuns(0)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = s.GetRun("abc")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = s.InsertEvent(&Event{RunID: "abc", Action: "install", Tool: "cmake", Manager: "homebrew"})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCreateSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateSchema())

	for _, table := range []string{"runs", "events"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestStartAndFinishRun(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	run := &Run{StartedAt: started, OSVersion: "14.4.1"}
	require.NoError(t, s.StartRun(run))
	assert.Len(t, run.ID, 36, "uuid assigned")
	assert.Equal(t, StatusRunning, run.Status)

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, "14.4.1", got.OSVersion)

	finished := started.Add(2 * time.Minute)
	run.FinishedAt = &finished
	run.Status = StatusFailed
	run.ExitCode = 21
	run.Error = "toolchain: missing compiler (clang)"
	run.BuildToolPath = "/opt/homebrew/bin/cmake"
	require.NoError(t, s.FinishRun(run))

	got, err = s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 21, got.ExitCode)
	assert.Equal(t, run.Error, got.Error)
	assert.Equal(t, "/opt/homebrew/bin/cmake", got.BuildToolPath)
	assert.Empty(t, got.CompilerPath)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
}

func TestFinishRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.FinishRun(&Run{ID: "missing", Status: StatusSucceeded})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func seedRuns(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range ids {
		require.NoError(t, s.StartRun(&Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
}

func TestListRunsAndLatest(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LatestRun()
	assert.ErrorIs(t, err, ErrNotFound)

	seedRuns(t, s, "aaaa-1", "bbbb-2", "cccc-3")

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "cccc-3", runs[0].ID)
	assert.Equal(t, "aaaa-1", runs[2].ID)

	runs, err = s.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "cccc-3", latest.ID)
}

func TestLatestRunWithPending(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LatestRunWithPending("remove", "restore")
	assert.ErrorIs(t, err, ErrNotFound)

	seedRuns(t, s, "run-1", "run-2", "run-3", "run-4")
	require.NoError(t, s.Recorder("run-1").RecordEvent("remove", "ninja", "macports", ""))
	require.NoError(t, s.Recorder("run-2").RecordEvent("remove", "cmake", "macports", ""))
	require.NoError(t, s.Recorder("run-2").RecordEvent("install", "cmake", "homebrew", ""))
	// run-3 removed a copy that was restored since; run-4 changed nothing.
	require.NoError(t, s.Recorder("run-3").RecordEvent("remove", "cmake", "homebrew", ""))
	require.NoError(t, s.Recorder("run-3").RecordEvent("restore", "cmake", "homebrew", ""))

	run, err := s.LatestRunWithPending("remove", "restore")
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID)

	// A restore of the same tool through another manager does not count.
	require.NoError(t, s.Recorder("run-2").RecordEvent("restore", "cmake", "homebrew", ""))
	run, err = s.LatestRunWithPending("remove", "restore")
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID)

	require.NoError(t, s.Recorder("run-2").RecordEvent("restore", "cmake", "macports", ""))
	run, err = s.LatestRunWithPending("remove", "restore")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)

	require.NoError(t, s.Recorder("run-1").RecordEvent("restore", "ninja", "macports", ""))
	_, err = s.LatestRunWithPending("remove", "restore")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindRun(t *testing.T) {
	s := newTestStore(t)
	seedRuns(t, s, "abc-111", "abd-222", "xyz-333")

	tests := []struct {
		ref     string
		want    string
		wantErr error
	}{
		{"latest", "xyz-333", nil},
		{"", "xyz-333", nil},
		{"abc-111", "abc-111", nil},
		{"abd", "abd-222", nil},
		{"zzz", "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			run, err := s.FindRun(tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, run.ID)
		})
	}

	_, err := s.FindRun("ab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestEvents(t *testing.T) {
	s := newTestStore(t)
	seedRuns(t, s, "run-1", "run-2")

	rec := s.Recorder("run-1")
	require.NoError(t, rec.RecordEvent("remove", "cmake", "macports", "designated manager is homebrew"))
	require.NoError(t, rec.RecordEvent("install", "cmake", "homebrew", ""))
	require.NoError(t, s.Recorder("run-2").RecordEvent("ignore", "ninja", "macports", ""))

	events, err := s.GetEvents("run-1", "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "remove", events[0].Action)
	assert.Equal(t, "macports", events[0].Manager)
	assert.Equal(t, "designated manager is homebrew", events[0].Detail)
	assert.False(t, events[0].CreatedAt.IsZero())
	assert.Equal(t, "install", events[1].Action)

	removed, err := s.GetEvents("run-1", "remove")
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	n, err := s.CountEvents("run-2", "ignore")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEvents_ForeignKey(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertEvent(&Event{RunID: "no-such-run", Action: "install", Tool: "cmake", Manager: "homebrew"})
	assert.Error(t, err)
}

func TestEvents_CascadeDelete(t *testing.T) {
	s := newTestStore(t)
	seedRuns(t, s, "run-1")
	require.NoError(t, s.Recorder("run-1").RecordEvent("install", "cmake", "homebrew", ""))

	_, err := s.db.Exec("DELETE FROM runs WHERE id = ?", "run-1")
	require.NoError(t, err)

	events, err := s.GetEvents("run-1", "")
	require.NoError(t, err)
	assert.Empty(t, events)
}
