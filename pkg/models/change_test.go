package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTaskChangeCarriesTempID(t *testing.T) {
	ev := TaskChange(ChangeTaskCreated, &Task{ID: "t1", Title: "wire"}, "temp-9")

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"tempId":"temp-9"`) {
		t.Errorf("tempId missing from wire form: %s", raw)
	}

	var back ChangeEvent
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	task, err := back.DecodeTask()
	if err != nil || task.ID != "t1" {
		t.Errorf("payload did not survive: %+v, err %v", task, err)
	}
}

func TestTempIDOmittedWhenEmpty(t *testing.T) {
	ev := TaskChange(ChangeTaskUpdated, &Task{ID: "t1"}, "")
	raw, _ := json.Marshal(ev)
	if strings.Contains(string(raw), "tempId") {
		t.Errorf("empty tempId should be omitted: %s", raw)
	}
}

func TestHardDeletePayloadIsBareID(t *testing.T) {
	ev := HardDelete(ChangeEventDeleted, "e1")
	if got := ev.PayloadID(); got != "e1" {
		t.Errorf("PayloadID = %q, want e1", got)
	}
	// The payload must not look like a soft delete.
	e, err := ev.DecodeCalendarEvent()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.DeletedAt != nil {
		t.Errorf("bare-id payload should carry no deletedAt")
	}
}

func TestLegacyWrapsBareString(t *testing.T) {
	ev := Legacy("tasks-changed")
	if ev.Type != ChangeType("tasks-changed") {
		t.Errorf("type = %q", ev.Type)
	}
	raw, _ := json.Marshal(ev)
	if string(raw) != `{"type":"tasks-changed"}` {
		t.Errorf("legacy wire form = %s", raw)
	}
}
