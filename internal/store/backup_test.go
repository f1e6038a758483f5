package store

import (
	"testing"
	"time"

	"github.com/dukerupert/cabinshare/internal/model"
)

func TestBackupLifecycle(t *testing.T) {
	f := newFixture(t)
	bs := NewBackupStore(f.db)

	b, err := bs.Create(f.orgID, "manual", "org.json.enc", "backups/1/org.json.enc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want pending", b.Status)
	}
	if latest, _ := bs.LatestCompleted(f.orgID); latest != nil {
		t.Error("expected no completed backup yet")
	}

	if err := bs.UpdateCompleted(b.ID, 1024); err != nil {
		t.Fatalf("complete: %v", err)
	}
	latest, err := bs.LatestCompleted(f.orgID)
	if err != nil || latest == nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.SizeBytes != 1024 || latest.CompletedAt == nil {
		t.Errorf("latest = %+v", latest)
	}

	failed, _ := bs.Create(f.orgID, "scheduled", "x", "backups/1/x")
	bs.UpdateStatus(failed.ID, model.BackupStatusFailed, "upload failed")
	got, _ := bs.GetByID(failed.ID)
	if got.ErrorMessage != "upload failed" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}

	keys, err := bs.DeleteOlderThan(f.orgID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("deleted keys = %v, want 2", keys)
	}
	if list, _ := bs.List(0, 10); len(list) != 0 {
		t.Errorf("remaining = %d, want 0", len(list))
	}
}
