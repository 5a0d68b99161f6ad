package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ldi/boardsync/pkg/models"
)

func TestNoteListSearchAndPaging(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "grace", models.RoleMember)

	for i := 0; i < 12; i++ {
		title := fmt.Sprintf("Meeting notes %d", i)
		if i%3 == 0 {
			title = fmt.Sprintf("Retro summary %d", i)
		}
		if _, err := db.CreateNote(ctx, &models.Note{Title: title, Content: "body", AuthorName: "grace"}, u.ID); err != nil {
			t.Fatalf("Failed to create note: %v", err)
		}
	}

	notes, total, err := db.ListNotes(ctx, NoteFilter{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("Failed to list notes: %v", err)
	}
	if total != 12 {
		t.Errorf("Expected total 12, got %d", total)
	}
	if len(notes) != 10 {
		t.Errorf("Expected first page of 10, got %d", len(notes))
	}

	notes, _, err = db.ListNotes(ctx, NoteFilter{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("Failed to list page 2: %v", err)
	}
	if len(notes) != 2 {
		t.Errorf("Expected 2 notes on page 2, got %d", len(notes))
	}

	// Case-insensitive search.
	notes, total, err = db.ListNotes(ctx, NoteFilter{Query: "retro"})
	if err != nil {
		t.Fatalf("Failed to search notes: %v", err)
	}
	if total != 4 {
		t.Errorf("Expected 4 retro notes, got %d", total)
	}
	for _, n := range notes {
		if n.CreatedBy == nil || n.CreatedBy.Name != "grace" {
			t.Errorf("Expected author snapshot on %s", n.ID)
		}
	}
}

func TestNoteSoftDeleteAndTrash(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "heidi", models.RoleMember)

	n, err := db.CreateNote(ctx, &models.Note{Title: "Keep", Content: "c", Date: time.Now().UTC()}, u.ID)
	if err != nil {
		t.Fatalf("Failed to create note: %v", err)
	}

	deleted, err := db.SoftDeleteNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("Failed to soft delete note: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Fatal("Expected deletedAt to be stamped")
	}

	_, total, err := db.ListNotes(ctx, NoteFilter{})
	if err != nil {
		t.Fatalf("Failed to list notes: %v", err)
	}
	if total != 0 {
		t.Errorf("Expected live list empty, got %d", total)
	}

	trash, total, err := db.ListNotes(ctx, NoteFilter{Trash: true})
	if err != nil {
		t.Fatalf("Failed to list trash: %v", err)
	}
	if total != 1 || len(trash) != 1 {
		t.Errorf("Expected 1 note in trash, got total=%d len=%d", total, len(trash))
	}

	if err := db.HardDeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("Failed to hard delete note: %v", err)
	}
}

func TestOnlineUsersWindow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	active := seedUser(t, db, "ivan", models.RoleMember)
	stale := seedUser(t, db, "judy", models.RoleMember)

	if err := db.TouchUser(ctx, active.ID); err != nil {
		t.Fatalf("Failed to touch user: %v", err)
	}
	old := time.Now().UTC().Add(-time.Minute)
	if _, err := db.ExecContext(ctx, `UPDATE users SET last_active = ? WHERE id = ?`, old, stale.ID); err != nil {
		t.Fatalf("Failed to backdate last_active: %v", err)
	}

	online, err := db.OnlineUsers(ctx, 20*time.Second)
	if err != nil {
		t.Fatalf("Failed to query online users: %v", err)
	}
	if len(online) != 1 || online[0].ID != active.ID {
		t.Errorf("Expected only the recently active user, got %+v", online)
	}

	if err := db.TouchUser(ctx, "missing"); err == nil {
		t.Error("Expected error touching a missing user")
	}
}
