package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/boardsync/pkg/models"
)

// Options tunes the synchronizer's timers. Zero values fall back to
// the defaults the board UI uses.
type Options struct {
	// HeartbeatInterval paces presence heartbeats.
	HeartbeatInterval time.Duration
	// OnlinePollInterval paces the online-user list refresh.
	OnlinePollInterval time.Duration
	// BackstopInterval paces the periodic full re-fetch that catches
	// anything the stream missed.
	BackstopInterval time.Duration
	// ReconnectDelay is the wait before reopening a failed stream.
	ReconnectDelay time.Duration
	// OnError receives user-visible failure notices (mutation
	// rollbacks). It is invoked on its own goroutine and may call the
	// snapshot accessors. Optional.
	OnError func(msg string)
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 5 * time.Second
	}
	if o.OnlinePollInterval == 0 {
		o.OnlinePollInterval = 5 * time.Second
	}
	if o.BackstopInterval == 0 {
		o.BackstopInterval = 30 * time.Second
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.OnError == nil {
		o.OnError = func(msg string) { slog.Warn(msg) }
	}
	return o
}

type mutationState int

const (
	mutationPending mutationState = iota
	mutationConfirmed
	mutationRolledBack
)

// mutation tracks one in-flight optimistic change from issue to
// confirm or rollback.
type mutation struct {
	id    string // temp id for creates, real id otherwise
	state mutationState
}

// Synchronizer maintains the local mirror. All state is owned by a
// single event-loop goroutine; user actions, stream frames, timer
// ticks and confirmation results all arrive through one serialized
// command queue, so handlers never race.
type Synchronizer struct {
	api  *API
	opts Options

	cmds    chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	// Everything below is touched only from the event loop.
	mirror    *Mirror
	inflight  map[string]*mutation
	sched     *scheduler
	seeded    bool
	streamCtx context.CancelFunc
}

func NewSynchronizer(api *API, opts Options) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		api:      api,
		opts:     opts.withDefaults(),
		cmds:     make(chan func(), 256),
		ctx:      ctx,
		cancel:   cancel,
		mirror:   &Mirror{},
		inflight: make(map[string]*mutation),
	}
}

// Start performs the initial bulk load, then begins streaming, polling
// and heartbeating. It fails only if the initial load does.
func (s *Synchronizer) Start(ctx context.Context) error {
	data, err := s.api.Init(ctx)
	if err != nil {
		return fmt.Errorf("initial load failed: %w", err)
	}

	s.mirror.Seed(data)
	s.seeded = true
	s.sched = newScheduler(s.opts)
	s.started.Store(true)

	s.wg.Add(1)
	go s.run()

	s.do(func() {
		s.autoArchive()
		s.connectStream()
	})
	return nil
}

// Close tears everything down: the stream connection, all timers and
// the event loop. Safe to call once.
func (s *Synchronizer) Close() {
	s.cancel()
	s.wg.Wait()
}

// do enqueues fn on the serialized event loop. Returns false when the
// synchronizer was never started or is shut down, so misuse before
// Start degrades to a no-op.
func (s *Synchronizer) do(fn func()) bool {
	if !s.started.Load() {
		return false
	}
	select {
	case s.cmds <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// notifyError surfaces a mutation failure to the caller. The callback
// runs on its own goroutine so it may safely use the snapshot
// accessors, which round-trip through the event loop.
func (s *Synchronizer) notifyError(msg string) {
	go s.opts.OnError(msg)
}

// call runs fn on the loop and waits for it, giving accessors a
// consistent snapshot.
func (s *Synchronizer) call(fn func(*Mirror)) {
	done := make(chan struct{})
	if !s.do(func() {
		fn(s.mirror)
		close(done)
	}) {
		return
	}
	select {
	case <-done:
	case <-s.ctx.Done():
	}
}

func (s *Synchronizer) run() {
	defer s.wg.Done()
	defer s.sched.Stop()

	for {
		select {
		case <-s.ctx.Done():
			if s.streamCtx != nil {
				s.streamCtx()
			}
			return
		case fn := <-s.cmds:
			fn()
		case <-s.sched.heartbeat.C:
			go func() {
				if err := s.api.Heartbeat(s.ctx); err != nil {
					slog.Debug("heartbeat failed", "err", err)
				}
			}()
		case <-s.sched.online.C:
			s.refreshOnline()
		case <-s.sched.backstop.C:
			s.refetch()
		case <-s.sched.reconnectC():
			s.connectStream()
		}
	}
}

// refetch launches a bulk load and applies it on the loop when it
// lands. Failures are logged; the next backstop tick retries.
func (s *Synchronizer) refetch() {
	go func() {
		data, err := s.api.Init(s.ctx)
		if err != nil {
			slog.Warn("backstop fetch failed", "err", err)
			return
		}
		s.do(func() { s.mirror.Seed(data) })
	}()
}

func (s *Synchronizer) refreshOnline() {
	go func() {
		users, err := s.api.OnlineUsers(s.ctx)
		if err != nil {
			slog.Debug("online poll failed", "err", err)
			return
		}
		s.do(func() { s.mirror.Online = users })
	}()
}

// connectStream opens the push transport. Stream frames are forwarded
// onto the command queue; on failure the scheduler arms a reconnect.
func (s *Synchronizer) connectStream() {
	if s.streamCtx != nil {
		s.streamCtx()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.streamCtx = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.api.openStream(ctx, func(ev models.ChangeEvent) {
			s.do(func() { s.handleChange(ev) })
		})
		if ctx.Err() != nil {
			return
		}
		slog.Warn("stream disconnected, scheduling reconnect", "err", err)
		s.do(func() { s.sched.armReconnect(s.opts.ReconnectDelay) })
	}()
}

// handleChange applies one broadcast event to the mirror. The switch
// is exhaustive over known tags; anything unrecognized triggers a full
// re-fetch, which keeps old clients correct when the protocol grows.
func (s *Synchronizer) handleChange(ev models.ChangeEvent) {
	switch ev.Type {
	case models.ChangeConnected:
		// Connection is healthy again; cancel any pending retry.
		s.sched.cancelReconnect()
	case models.ChangePing:

	case models.ChangeTaskCreated, models.ChangeTaskUpdated:
		t, err := ev.DecodeTask()
		if err != nil {
			slog.Error("dropping malformed task payload", "type", ev.Type, "err", err)
			return
		}
		s.mirror.UpsertTask(t, ev.TempID)
	case models.ChangeTaskDeleted:
		t, err := ev.DecodeTask()
		if err != nil || t.ID == "" {
			slog.Error("dropping malformed task payload", "type", ev.Type, "err", err)
			return
		}
		s.mirror.DeleteTask(t)

	case models.ChangeEventCreated, models.ChangeEventUpdated:
		e, err := ev.DecodeCalendarEvent()
		if err != nil {
			slog.Error("dropping malformed event payload", "type", ev.Type, "err", err)
			return
		}
		s.mirror.UpsertEvent(e, ev.TempID)
	case models.ChangeEventDeleted:
		e, err := ev.DecodeCalendarEvent()
		if err != nil || e.ID == "" {
			slog.Error("dropping malformed event payload", "type", ev.Type, "err", err)
			return
		}
		s.mirror.DeleteEvent(e)

	case models.ChangeNoteCreated:
		n, err := ev.DecodeNote()
		if err != nil {
			slog.Error("dropping malformed note payload", "type", ev.Type, "err", err)
			return
		}
		s.mirror.UpsertNote(n)
	case models.ChangeNoteDeleted:
		n, err := ev.DecodeNote()
		if err != nil || n.ID == "" {
			slog.Error("dropping malformed note payload", "type", ev.Type, "err", err)
			return
		}
		s.mirror.DeleteNote(n)

	case models.ChangeUsersUpdated:
		s.refreshOnline()

	default:
		// Protocol drift: heal with a full re-fetch.
		slog.Info("unknown change type, re-fetching", "type", ev.Type)
		s.refetch()
	}
}

// autoArchive moves complete tasks whose completion day has passed to
// done. Runs once after the initial load.
func (s *Synchronizer) autoArchive() {
	now := time.Now()
	for _, t := range s.mirror.Tasks {
		if t.Deleted() || t.Status != models.StatusComplete || t.CompletedAt == nil {
			continue
		}
		if !sameDay(*t.CompletedAt, now) {
			s.UpdateTask(t.ID, map[string]any{"status": string(models.StatusDone)})
		}
	}
}

// AddTask applies an optimistic placeholder immediately and issues the
// create. On confirm the placeholder is replaced by the authoritative
// record (by temp id first, deduplicating against any copy a
// broadcast already delivered); on failure it is removed and the
// error surfaced.
func (s *Synchronizer) AddTask(draft TaskDraft) {
	s.do(func() {
		if draft.Status == "" {
			draft.Status = models.StatusTodo
		}
		if draft.Priority == "" {
			draft.Priority = models.PriorityMedium
		}
		tempID := "temp-" + uuid.NewString()
		now := time.Now()
		s.mirror.UpsertTask(&models.Task{
			ID:          tempID,
			Title:       draft.Title,
			Description: draft.Description,
			Status:      draft.Status,
			Priority:    draft.Priority,
			DueDate:     draft.DueDate,
			Category:    draft.Category,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, "")

		m := &mutation{id: tempID, state: mutationPending}
		s.inflight[tempID] = m

		go func() {
			created, err := s.api.CreateTask(s.ctx, draft, tempID)
			s.do(func() {
				defer delete(s.inflight, tempID)
				if err != nil {
					m.state = mutationRolledBack
					s.mirror.RemoveTask(tempID)
					s.notifyError("Failed to create task")
					return
				}
				m.state = mutationConfirmed
				s.mirror.ReplaceTask(tempID, created)
			})
		}()
	})
}

// UpdateTask patches a task optimistically and reconciles with the
// server response, restoring the pre-edit snapshot on failure.
func (s *Synchronizer) UpdateTask(id string, patch map[string]any) {
	s.do(func() {
		original := s.mirror.FindTask(id)
		if original == nil {
			return
		}
		snapshot := *original

		optimistic := snapshot
		applyTaskPatch(&optimistic, patch)
		optimistic.UpdatedAt = time.Now()
		s.mirror.UpsertTask(&optimistic, "")

		m := &mutation{id: id, state: mutationPending}
		s.inflight[id] = m

		go func() {
			updated, err := s.api.UpdateTask(s.ctx, id, patch)
			s.do(func() {
				defer delete(s.inflight, id)
				if err != nil {
					m.state = mutationRolledBack
					restore := snapshot
					s.mirror.UpsertTask(&restore, "")
					s.notifyError("Failed to update task")
					return
				}
				m.state = mutationConfirmed
				s.mirror.UpsertTask(updated, "")
			})
		}()
	})
}

// DeleteTask marks the task deleted optimistically (soft delete), or
// removes it outright when hard is set, rolling back on failure.
func (s *Synchronizer) DeleteTask(id string, hard bool) {
	s.do(func() {
		original := s.mirror.FindTask(id)
		if original == nil {
			return
		}
		snapshot := *original

		if hard {
			s.mirror.RemoveTask(id)
		} else {
			optimistic := snapshot
			now := time.Now()
			optimistic.DeletedAt = &now
			s.mirror.UpsertTask(&optimistic, "")
		}

		m := &mutation{id: id, state: mutationPending}
		s.inflight[id] = m

		go func() {
			err := s.api.DeleteTask(s.ctx, id, hard)
			s.do(func() {
				defer delete(s.inflight, id)
				if err != nil {
					m.state = mutationRolledBack
					restore := snapshot
					s.mirror.UpsertTask(&restore, "")
					s.notifyError("Failed to delete task")
					return
				}
				m.state = mutationConfirmed
			})
		}()
	})
}

// AddEvent mirrors AddTask for calendar events.
func (s *Synchronizer) AddEvent(draft EventDraft) {
	s.do(func() {
		if draft.Color == "" {
			draft.Color = models.ColorBlue
		}
		tempID := "temp-evt-" + uuid.NewString()
		s.mirror.UpsertEvent(&models.CalendarEvent{
			ID:          tempID,
			Title:       draft.Title,
			Description: draft.Description,
			Dates:       draft.Dates,
			StartTime:   draft.StartTime,
			EndTime:     draft.EndTime,
			Color:       draft.Color,
		}, "")

		m := &mutation{id: tempID, state: mutationPending}
		s.inflight[tempID] = m

		go func() {
			created, err := s.api.CreateEvent(s.ctx, draft, tempID)
			s.do(func() {
				defer delete(s.inflight, tempID)
				if err != nil {
					m.state = mutationRolledBack
					s.mirror.RemoveEvent(tempID)
					s.notifyError("Failed to create event")
					return
				}
				m.state = mutationConfirmed
				s.mirror.ReplaceEvent(tempID, created)
			})
		}()
	})
}

func (s *Synchronizer) UpdateEvent(id string, patch map[string]any) {
	s.do(func() {
		original := s.mirror.FindEvent(id)
		if original == nil {
			return
		}
		snapshot := *original

		optimistic := snapshot
		applyEventPatch(&optimistic, patch)
		s.mirror.UpsertEvent(&optimistic, "")

		m := &mutation{id: id, state: mutationPending}
		s.inflight[id] = m

		go func() {
			updated, err := s.api.UpdateEvent(s.ctx, id, patch)
			s.do(func() {
				defer delete(s.inflight, id)
				if err != nil {
					m.state = mutationRolledBack
					restore := snapshot
					s.mirror.UpsertEvent(&restore, "")
					s.notifyError("Failed to update event")
					return
				}
				m.state = mutationConfirmed
				if updated.ID == "" {
					// Emptying the dates set deletes the event
					// server-side; the response carries no record.
					s.mirror.RemoveEvent(id)
					return
				}
				s.mirror.UpsertEvent(updated, "")
			})
		}()
	})
}

func (s *Synchronizer) DeleteEvent(id string, hard bool) {
	s.do(func() {
		original := s.mirror.FindEvent(id)
		if original == nil {
			return
		}
		snapshot := *original

		if hard {
			s.mirror.RemoveEvent(id)
		} else {
			optimistic := snapshot
			now := time.Now()
			optimistic.DeletedAt = &now
			s.mirror.UpsertEvent(&optimistic, "")
		}

		m := &mutation{id: id, state: mutationPending}
		s.inflight[id] = m

		go func() {
			err := s.api.DeleteEvent(s.ctx, id, hard)
			s.do(func() {
				defer delete(s.inflight, id)
				if err != nil {
					m.state = mutationRolledBack
					restore := snapshot
					s.mirror.UpsertEvent(&restore, "")
					s.notifyError("Failed to delete event")
					return
				}
				m.state = mutationConfirmed
			})
		}()
	})
}

// AddNote issues the create and inserts the confirmed note unless the
// broadcast beat the response to it. Notes skip the optimistic
// placeholder; the save dialog stays open until confirmation anyway.
func (s *Synchronizer) AddNote(draft NoteDraft) {
	go func() {
		created, err := s.api.CreateNote(s.ctx, draft)
		if err != nil {
			s.notifyError("Failed to save note")
			return
		}
		s.do(func() { s.mirror.UpsertNote(created) })
	}()
}

func (s *Synchronizer) DeleteNote(id string) {
	s.do(func() {
		original := s.mirror.FindNote(id)
		if original == nil {
			return
		}
		snapshot := *original
		s.mirror.RemoveNote(id)

		// Notes have no trash view; deleting one is permanent.
		go func() {
			err := s.api.DeleteNote(s.ctx, id, true)
			s.do(func() {
				if err != nil {
					restore := snapshot
					s.mirror.UpsertNote(&restore)
					s.notifyError("Failed to delete note")
				}
			})
		}()
	})
}

func applyTaskPatch(t *models.Task, patch map[string]any) {
	for key, value := range patch {
		switch key {
		case "title":
			if v, ok := value.(string); ok {
				t.Title = v
			}
		case "description":
			if v, ok := value.(string); ok {
				t.Description = v
			}
		case "status":
			if v, ok := value.(string); ok {
				t.Status = models.Status(v)
			}
		case "priority":
			if v, ok := value.(string); ok {
				t.Priority = models.Priority(v)
			}
		case "category":
			if v, ok := value.(string); ok {
				t.Category = v
			}
		case "dueDate":
			t.DueDate = patchTime(value)
		case "deletedAt":
			t.DeletedAt = patchTime(value)
		}
	}
}

func applyEventPatch(e *models.CalendarEvent, patch map[string]any) {
	for key, value := range patch {
		switch key {
		case "title":
			if v, ok := value.(string); ok {
				e.Title = v
			}
		case "description":
			if v, ok := value.(string); ok {
				e.Description = v
			}
		case "startTime":
			if v, ok := value.(string); ok {
				e.StartTime = v
			}
		case "endTime":
			if v, ok := value.(string); ok {
				e.EndTime = v
			}
		case "color":
			if v, ok := value.(string); ok {
				e.Color = models.EventColor(v)
			}
		case "dates":
			if v, ok := value.([]time.Time); ok {
				e.Dates = v
			}
		case "deletedAt":
			e.DeletedAt = patchTime(value)
		}
	}
}

func patchTime(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}
	return nil
}
