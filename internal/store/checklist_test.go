package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/cabinshare/internal/model"
)

func imageUsage(t *testing.T, is *ImageStore, orgID, id int64) int {
	t.Helper()
	img, err := is.GetByID(orgID, id)
	if err != nil || img == nil {
		t.Fatalf("get image %d: %v", id, err)
	}
	return img.UsageCount
}

func TestChecklistItemImageUsage(t *testing.T) {
	f := newFixture(t)
	cs := NewChecklistStore(f.db)
	is := NewImageStore(f.db)

	dock, _ := is.Create(f.orgID, "dock.jpg", "k1", "image/jpeg", 10)
	stove, _ := is.Create(f.orgID, "stove.jpg", "k2", "image/jpeg", 10)

	list, err := cs.Create(f.orgID, model.ChecklistDaily, "Daily", []model.ChecklistItem{
		{Text: "Tie up boat", ImageID: &dock.ID},
		{Text: "Check stove", ImageID: &stove.ID},
		{Text: "Lock door"},
	})
	if err != nil {
		t.Fatalf("create checklist: %v", err)
	}
	if len(list.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(list.Items))
	}
	if imageUsage(t, is, f.orgID, dock.ID) != 1 || imageUsage(t, is, f.orgID, stove.ID) != 1 {
		t.Fatal("expected each image used once")
	}

	added, err := cs.AddItem(f.orgID, list.ID, "Check dock lines", &dock.ID)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if added.SortOrder != 3 {
		t.Errorf("sort_order = %d, want 3", added.SortOrder)
	}
	if got := imageUsage(t, is, f.orgID, dock.ID); got != 2 {
		t.Errorf("dock usage = %d, want 2", got)
	}

	// Move the stove item to the dock image.
	if _, err := cs.UpdateItem(f.orgID, list.Items[1].ID, "Check stove", &dock.ID); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if imageUsage(t, is, f.orgID, dock.ID) != 3 || imageUsage(t, is, f.orgID, stove.ID) != 0 {
		t.Error("expected usage to move from stove to dock")
	}

	if err := cs.DeleteItem(f.orgID, list.Items[0].ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if got := imageUsage(t, is, f.orgID, dock.ID); got != 2 {
		t.Errorf("dock usage after delete = %d, want 2", got)
	}

	if err := cs.Delete(f.orgID, list.ID); err != nil {
		t.Fatalf("delete checklist: %v", err)
	}
	if got := imageUsage(t, is, f.orgID, dock.ID); got != 0 {
		t.Errorf("dock usage after checklist delete = %d, want 0", got)
	}
}

func TestChecklistItemForeignImage(t *testing.T) {
	f := newFixture(t)
	cs := NewChecklistStore(f.db)
	list, _ := cs.Create(f.orgID, model.ChecklistDaily, "Daily", nil)

	missing := int64(999)
	_, err := cs.AddItem(f.orgID, list.ID, "x", &missing)
	if !errors.Is(err, ErrImageNotFound) {
		t.Errorf("err = %v, want ErrImageNotFound", err)
	}
}

func TestImageDeleteAndReconcile(t *testing.T) {
	f := newFixture(t)
	cs := NewChecklistStore(f.db)
	is := NewImageStore(f.db)

	img, _ := is.Create(f.orgID, "a.jpg", "key-a", "image/jpeg", 1)
	list, _ := cs.Create(f.orgID, model.ChecklistArrival, "Arrive", []model.ChecklistItem{{Text: "x", ImageID: &img.ID}})

	if _, err := is.Delete(f.orgID, img.ID, false); !errors.Is(err, ErrInUse) {
		t.Fatalf("err = %v, want ErrInUse", err)
	}

	// Introduce drift and reconcile.
	f.db.Exec(`UPDATE images SET usage_count = 7 WHERE id = ?`, img.ID)
	corrections, err := is.Reconcile(f.orgID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(corrections) != 1 || corrections[0].Previous != 7 || corrections[0].Actual != 1 {
		t.Errorf("corrections = %+v", corrections)
	}
	if got := imageUsage(t, is, f.orgID, img.ID); got != 1 {
		t.Errorf("usage after reconcile = %d, want 1", got)
	}

	key, err := is.Delete(f.orgID, img.ID, true)
	if err != nil {
		t.Fatalf("force delete: %v", err)
	}
	if key != "key-a" {
		t.Errorf("key = %q, want key-a", key)
	}
	items, _ := cs.ListItems(list.ID)
	if len(items) != 1 || items[0].ImageID != nil {
		t.Errorf("items = %+v, want image reference cleared", items)
	}
}

func TestCheckinSessionCompletion(t *testing.T) {
	f := newFixture(t, "A")
	cs := NewChecklistStore(f.db)
	list, _ := cs.Create(f.orgID, model.ChecklistDeparture, "Leave", []model.ChecklistItem{{Text: "a"}, {Text: "b"}})

	sess, err := cs.SaveSession(&model.CheckinSession{
		OrganizationID: f.orgID,
		FamilyGroupID:  &f.groups[0],
		ChecklistID:    &list.ID,
		SessionType:    model.ChecklistDeparture,
		CheckDate:      "2026-07-05",
		Responses:      map[int64]bool{list.Items[0].ID: true},
	})
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
	if sess.Completed {
		t.Error("expected incomplete session")
	}

	sess.Responses[list.Items[1].ID] = true
	sess, err = cs.SaveSession(sess)
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if !sess.Completed || sess.CompletedAt == nil {
		t.Errorf("session = %+v, want completed", sess)
	}
}
