package store

import "testing"

func TestSessionCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ss := NewSessionStore(f.db)

	sess, err := ss.Create(f.userID, f.orgID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	if sess.OrganizationID != f.orgID {
		t.Errorf("organization_id = %d, want %d", sess.OrganizationID, f.orgID)
	}

	got, err := ss.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("got %+v, want session %d", got, sess.ID)
	}
}

func TestSessionGetByTokenNotFound(t *testing.T) {
	ss := NewSessionStore(openTestDB(t))

	sess, err := ss.GetByToken("nonexistent")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for nonexistent token")
	}
}

func TestSessionExpired(t *testing.T) {
	f := newFixture(t)
	ss := NewSessionStore(f.db)
	sess, _ := ss.Create(f.userID, f.orgID)

	if _, err := f.db.Exec(`UPDATE sessions SET expires_at = '2000-01-01 00:00:00' WHERE id = ?`, sess.ID); err != nil {
		t.Fatalf("expire session: %v", err)
	}
	got, err := ss.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got != nil {
		t.Error("expected expired session to be ignored")
	}
	n, err := ss.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestSessionSwitchOrganization(t *testing.T) {
	f := newFixture(t)
	ss := NewSessionStore(f.db)
	sess, _ := ss.Create(f.userID, 0)

	if err := ss.UpdateOrganizationID(sess.ID, f.orgID); err != nil {
		t.Fatalf("update organization: %v", err)
	}
	got, _ := ss.GetByToken(sess.Token)
	if got.OrganizationID != f.orgID {
		t.Errorf("organization_id = %d, want %d", got.OrganizationID, f.orgID)
	}
}

func TestSessionDeleteByUserID(t *testing.T) {
	f := newFixture(t)
	ss := NewSessionStore(f.db)
	ss.Create(f.userID, f.orgID)
	ss.Create(f.userID, f.orgID)

	if err := ss.DeleteByUserID(f.userID); err != nil {
		t.Fatalf("delete by user id: %v", err)
	}
	var count int
	f.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, f.userID).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 sessions, got %d", count)
	}
}
