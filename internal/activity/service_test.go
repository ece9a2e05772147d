package activity

import (
	"context"
	"testing"

	"bakery-backend/internal/events"
	"bakery-backend/internal/models"
	"bakery-backend/internal/testutil"
)

func TestSubscriber_writes_event(t *testing.T) {
	db := testutil.NewTestDB(t)
	actor := uint(4)

	evt := events.New(models.ActivityBatchCompleted, "batch", 9, "Batch 9 completed", map[string]string{"flour": "10"}).
		WithActor(&actor, "Mara")
	if err := Subscriber(db)(context.Background(), evt); err != nil {
		t.Fatalf("subscriber: %v", err)
	}

	var logs []models.ActivityLog
	if err := db.Find(&logs).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	l := logs[0]
	if l.Type != models.ActivityBatchCompleted || l.EntityID != 9 || l.UserName != "Mara" {
		t.Errorf("unexpected log %+v", l)
	}
	if l.Data != `{"flour":"10"}` {
		t.Errorf("unexpected data %q", l.Data)
	}
}

func TestWriteLog_nil_data_is_json_null(t *testing.T) {
	db := testutil.NewTestDB(t)
	if err := WriteLog(db, LogOptions{Type: models.ActivityOrderCreated, EntityType: "order", EntityID: 1}); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}
	var l models.ActivityLog
	if err := db.First(&l).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.Data != "null" {
		t.Errorf("expected null data, got %q", l.Data)
	}
}

func TestWriteLog_unencodable_data_is_an_error(t *testing.T) {
	db := testutil.NewTestDB(t)
	err := WriteLog(db, LogOptions{Type: models.ActivityBOMUpdated, EntityType: "product", EntityID: 3, Data: map[string]any{"ch": make(chan int)}})
	if err == nil {
		t.Fatal("expected an encoding error")
	}

	var n int64
	db.Model(&models.ActivityLog{}).Count(&n)
	if n != 0 {
		t.Errorf("expected no log rows, got %d", n)
	}
}
