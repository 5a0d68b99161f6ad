package db

import (
	"context"
	"testing"
	"time"

	"github.com/ldi/boardsync/pkg/models"
)

func TestEventCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "dave", models.RoleMember)

	day1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	ev, err := db.CreateEvent(ctx, &models.CalendarEvent{
		Title:     "Sprint review",
		Dates:     []time.Time{day1, day2},
		StartTime: "10:00",
		EndTime:   "11:00",
		Color:     models.ColorGreen,
	}, u.ID)
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	if len(ev.Dates) != 2 {
		t.Fatalf("Expected 2 dates, got %d", len(ev.Dates))
	}
	if !ev.OccursOn(day1) || !ev.OccursOn(day2) {
		t.Error("Expected event to occur on both stored days")
	}
	if ev.OccursOn(day1.AddDate(0, 0, 5)) {
		t.Error("Expected event not to occur on an unrelated day")
	}

	// Dates order survives a round trip.
	fetched, err := db.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Failed to get event: %v", err)
	}
	if !fetched.Dates[0].Equal(day1) || !fetched.Dates[1].Equal(day2) {
		t.Errorf("Expected stable date order, got %v", fetched.Dates)
	}

	fetched.Dates = fetched.Dates[:1]
	fetched.Color = models.ColorRed
	updated, err := db.UpdateEvent(ctx, fetched)
	if err != nil {
		t.Fatalf("Failed to update event: %v", err)
	}
	if len(updated.Dates) != 1 || updated.Color != models.ColorRed {
		t.Errorf("Update not persisted: %+v", updated)
	}
}

func TestEventRequiresDates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "erin", models.RoleMember)

	if _, err := db.CreateEvent(ctx, &models.CalendarEvent{Title: "No dates", Color: models.ColorBlue}, u.ID); err == nil {
		t.Error("Expected error creating an event with no dates")
	}

	ev, err := db.CreateEvent(ctx, &models.CalendarEvent{
		Title: "One day",
		Dates: []time.Time{time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		Color: models.ColorBlue,
	}, u.ID)
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	ev.Dates = nil
	if _, err := db.UpdateEvent(ctx, ev); err == nil {
		t.Error("Expected error persisting an event with an empty dates set")
	}
}

func TestPurgeEventsDeletedBefore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "frank", models.RoleMember)

	ev, err := db.CreateEvent(ctx, &models.CalendarEvent{
		Title: "Stale",
		Dates: []time.Time{time.Now().UTC()},
		Color: models.ColorPurple,
	}, u.ID)
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}

	deletedAt := time.Now().UTC().Add(-25 * time.Hour)
	if _, err := db.ExecContext(ctx, `UPDATE events SET deleted_at = ? WHERE id = ?`, deletedAt, ev.ID); err != nil {
		t.Fatalf("Failed to backdate deletion: %v", err)
	}

	purged, err := db.PurgeEventsDeletedBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged event, got %d", purged)
	}
}
