package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ldi/boardsync/internal/auth"
	"github.com/ldi/boardsync/internal/bus"
	"github.com/ldi/boardsync/internal/config"
	"github.com/ldi/boardsync/internal/db"
	"github.com/ldi/boardsync/internal/server"
	"github.com/ldi/boardsync/pkg/models"
)

const testPassword = "hunter2"

// newBoard spins up a full server (sqlite, bus, auth, HTTP) with one
// member account and returns its base URL.
func newBoard(t *testing.T) string {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	for _, name := range []string{"alice", "bob"} {
		err := database.CreateUser(context.Background(), &db.UserRecord{
			User:         models.User{Name: name, Role: models.RoleMember},
			PasswordHash: hash,
		})
		if err != nil {
			t.Fatalf("failed to seed user %s: %v", name, err)
		}
	}

	cfg := config.Default()
	cfg.PingInterval = 100 * time.Millisecond
	srv := server.New(database, bus.New(), auth.NewProvider(database, "test-secret"), cfg)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// newSync logs in and starts a synchronizer with fast timers.
func newSync(t *testing.T, baseURL, user string) *Synchronizer {
	t.Helper()

	api := NewAPI(baseURL, "")
	if _, err := api.Login(context.Background(), user, testPassword); err != nil {
		t.Fatalf("login failed for %s: %v", user, err)
	}

	s := NewSynchronizer(api, Options{
		HeartbeatInterval:  50 * time.Millisecond,
		OnlinePollInterval: 50 * time.Millisecond,
		BackstopInterval:   time.Hour,
		ReconnectDelay:     50 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("synchronizer start failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEventCreateReachesOtherClient(t *testing.T) {
	base := newBoard(t)
	alice := newSync(t, base, "alice")
	bob := newSync(t, base, "bob")

	d := day("2024-06-01")
	alice.AddEvent(EventDraft{Title: "sprint review", Dates: []time.Time{d}, StartTime: "10:00"})

	waitFor(t, "bob to see the event", func() bool {
		evs := bob.EventsForDate(d)
		return len(evs) == 1 && evs[0].Title == "sprint review"
	})
	// Alice's optimistic placeholder must have converged to the same
	// single confirmed record.
	waitFor(t, "alice to converge to one confirmed event", func() bool {
		evs := alice.EventsForDate(d)
		return len(evs) == 1 && evs[0].Title == "sprint review" &&
			evs[0].ID != "" && evs[0].ID[:4] != "temp"
	})
}

func TestTaskSoftDeleteReachesOtherClient(t *testing.T) {
	base := newBoard(t)
	alice := newSync(t, base, "alice")
	bob := newSync(t, base, "bob")

	alice.AddTask(TaskDraft{Title: "retire old build"})
	waitFor(t, "bob to see the task", func() bool {
		return len(bob.ActiveTasks()) == 1
	})

	id := bob.ActiveTasks()[0].ID
	alice.DeleteTask(id, false)

	waitFor(t, "bob to see the task in trash", func() bool {
		trash := bob.DeletedTasks()
		return len(trash) == 1 && trash[0].ID == id && len(bob.ActiveTasks()) == 0
	})
}

func TestTaskUpdateIsIdempotentAcrossClients(t *testing.T) {
	base := newBoard(t)
	alice := newSync(t, base, "alice")
	bob := newSync(t, base, "bob")

	alice.AddTask(TaskDraft{Title: "plan offsite"})
	waitFor(t, "bob to see the task", func() bool {
		return len(bob.Tasks()) == 1
	})
	id := bob.Tasks()[0].ID

	bob.UpdateTask(id, map[string]any{"status": string(models.StatusInProgress)})

	// Bob receives his own mutation twice: once optimistically, once
	// over the stream. He must still hold exactly one record.
	waitFor(t, "bob's update to settle", func() bool {
		tasks := bob.Tasks()
		return len(tasks) == 1 && tasks[0].Status == models.StatusInProgress
	})
	waitFor(t, "alice to see the update", func() bool {
		tasks := alice.Tasks()
		return len(tasks) == 1 && tasks[0].Status == models.StatusInProgress
	})
}

func TestCompletedAtSetAndCleared(t *testing.T) {
	base := newBoard(t)
	alice := newSync(t, base, "alice")

	alice.AddTask(TaskDraft{Title: "ship release"})
	waitFor(t, "task to confirm", func() bool {
		tasks := alice.Tasks()
		return len(tasks) == 1 && tasks[0].ID[:4] != "temp"
	})
	id := alice.Tasks()[0].ID

	alice.UpdateTask(id, map[string]any{"status": string(models.StatusComplete)})
	waitFor(t, "completedAt to be stamped", func() bool {
		tasks := alice.Tasks()
		return len(tasks) == 1 && tasks[0].CompletedAt != nil
	})

	alice.UpdateTask(id, map[string]any{"status": string(models.StatusTodo)})
	waitFor(t, "completedAt to be cleared", func() bool {
		tasks := alice.Tasks()
		return len(tasks) == 1 && tasks[0].CompletedAt == nil
	})
}

func TestEmptyingDatesDeletesEvent(t *testing.T) {
	base := newBoard(t)
	alice := newSync(t, base, "alice")
	bob := newSync(t, base, "bob")

	d := day("2024-07-04")
	alice.AddEvent(EventDraft{Title: "holiday", Dates: []time.Time{d}})
	waitFor(t, "bob to see the event", func() bool {
		return len(bob.Events()) == 1
	})
	id := bob.Events()[0].ID

	alice.UpdateEvent(id, map[string]any{"dates": []time.Time{}})

	waitFor(t, "event to vanish everywhere", func() bool {
		return len(bob.Events()) == 0 && len(alice.Events()) == 0
	})
}

func TestNoteLifecycleAcrossClients(t *testing.T) {
	base := newBoard(t)
	alice := newSync(t, base, "alice")
	bob := newSync(t, base, "bob")

	alice.AddNote(NoteDraft{Title: "standup", Content: "blocked on review"})
	waitFor(t, "bob to see the note", func() bool {
		notes := bob.Notes()
		return len(notes) == 1 && notes[0].AuthorName == "alice"
	})

	id := bob.Notes()[0].ID
	bob.DeleteNote(id)
	waitFor(t, "note to leave alice's mirror", func() bool {
		return len(alice.Notes()) == 0
	})
}

func TestOnlinePresencePropagates(t *testing.T) {
	base := newBoard(t)
	alice := newSync(t, base, "alice")

	// Heartbeats fire every 50ms; the poll should pick alice up.
	waitFor(t, "alice to appear online", func() bool {
		for _, u := range alice.Online() {
			if u.Name == "alice" {
				return true
			}
		}
		return false
	})
}

// failingBoard serves a valid init payload but rejects every mutation,
// for exercising rollback.
func failingBoard(t *testing.T, seed []*models.Task) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/init", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(InitData{Tasks: seed})
	})
	mux.HandleFunc("GET /api/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	base := failingBoard(t, []*models.Task{{ID: "t1", Title: "original", Status: models.StatusTodo}})

	var failures atomic.Int32
	s := NewSynchronizer(NewAPI(base, "token"), Options{
		BackstopInterval: time.Hour,
		OnError:          func(string) { failures.Add(1) },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(s.Close)

	s.UpdateTask("t1", map[string]any{"title": "edited"})

	waitFor(t, "rollback after server rejection", func() bool {
		tasks := s.Tasks()
		return failures.Load() == 1 && len(tasks) == 1 && tasks[0].Title == "original"
	})
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	base := failingBoard(t, nil)

	var failures atomic.Int32
	s := NewSynchronizer(NewAPI(base, "token"), Options{
		BackstopInterval: time.Hour,
		OnError:          func(string) { failures.Add(1) },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(s.Close)

	s.AddTask(TaskDraft{Title: "doomed"})

	waitFor(t, "placeholder removal after failed create", func() bool {
		return failures.Load() == 1 && len(s.Tasks()) == 0
	})
}

func TestUnknownChangeTypeTriggersRefetch(t *testing.T) {
	var inits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/init", func(w http.ResponseWriter, r *http.Request) {
		inits.Add(1)
		json.NewEncoder(w).Encode(InitData{})
	})
	mux.HandleFunc("GET /api/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"board-reshuffled\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	s := NewSynchronizer(NewAPI(ts.URL, "token"), Options{BackstopInterval: time.Hour})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(s.Close)

	waitFor(t, "re-fetch after unknown change type", func() bool {
		return inits.Load() >= 2
	})
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	var streams atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/init", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(InitData{})
	})
	mux.HandleFunc("GET /api/stream", func(w http.ResponseWriter, r *http.Request) {
		n := streams.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		w.(http.Flusher).Flush()
		if n == 1 {
			return // drop the first connection immediately
		}
		<-r.Context().Done()
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	s := NewSynchronizer(NewAPI(ts.URL, "token"), Options{
		BackstopInterval: time.Hour,
		ReconnectDelay:   50 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(s.Close)

	waitFor(t, "a second stream connection", func() bool {
		return streams.Load() >= 2
	})
}

func TestDeleteRollsBackOnFailure(t *testing.T) {
	base := failingBoard(t, []*models.Task{{ID: "t1", Title: "keep me", Status: models.StatusTodo}})

	var failures atomic.Int32
	s := NewSynchronizer(NewAPI(base, "token"), Options{
		BackstopInterval: time.Hour,
		OnError:          func(string) { failures.Add(1) },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(s.Close)

	s.DeleteTask("t1", false)

	// The optimistic trash move must be undone: the task comes back
	// live, not soft-deleted.
	waitFor(t, "delete rollback", func() bool {
		tasks := s.Tasks()
		return failures.Load() == 1 && len(tasks) == 1 &&
			tasks[0].ID == "t1" && tasks[0].DeletedAt == nil
	})
	if trash := s.DeletedTasks(); len(trash) != 0 {
		t.Errorf("rolled-back delete left %d tasks in trash", len(trash))
	}
}

func TestMalformedFramesDoNotKillStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/init", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(InitData{})
	})
	mux.HandleFunc("GET /api/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		// Garbage between valid frames: not JSON at all, then a frame
		// whose data payload has the wrong shape.
		fmt.Fprint(w, "data: this is not json at all\n\n")
		fmt.Fprint(w, "data: {\"type\":\"task-created\",\"data\":\"nope\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"task-created\",\"data\":{\"id\":\"t1\",\"title\":\"survived\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	s := NewSynchronizer(NewAPI(ts.URL, "token"), Options{BackstopInterval: time.Hour})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(s.Close)

	// The valid frame after the garbage still applies, proving the
	// connection survived both bad ones.
	waitFor(t, "valid frame after garbage", func() bool {
		tasks := s.Tasks()
		return len(tasks) == 1 && tasks[0].Title == "survived"
	})
}

func TestUseBeforeStartIsNoOp(t *testing.T) {
	s := NewSynchronizer(NewAPI("http://unused.invalid", "token"), Options{})

	// None of these may panic or block: the loop is not running.
	s.AddTask(TaskDraft{Title: "ignored"})
	s.UpdateTask("t1", map[string]any{"title": "ignored"})
	s.DeleteTask("t1", false)
	if tasks := s.Tasks(); tasks != nil {
		t.Errorf("accessor before Start returned %v, want nil", tasks)
	}
	s.Close()
}

func TestErrorCallbackMayReadSnapshots(t *testing.T) {
	base := failingBoard(t, []*models.Task{{ID: "t1", Title: "original", Status: models.StatusTodo}})

	// The callback reads a snapshot, which round-trips through the
	// event loop. This must not deadlock.
	var s *Synchronizer
	var seen atomic.Int32
	s = NewSynchronizer(NewAPI(base, "token"), Options{
		BackstopInterval: time.Hour,
		OnError: func(string) {
			seen.Store(int32(len(s.Tasks())))
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(s.Close)

	s.UpdateTask("t1", map[string]any{"title": "edited"})

	waitFor(t, "error callback to finish its snapshot read", func() bool {
		return seen.Load() == 1
	})
}
