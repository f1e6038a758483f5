package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/cabinshare/internal/database"
	"github.com/dukerupert/cabinshare/internal/email"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/push"
	"github.com/dukerupert/cabinshare/internal/selection"
	"github.com/dukerupert/cabinshare/internal/store"
	"github.com/dukerupert/cabinshare/internal/websocket"
)

type fakeMailer struct {
	mu      sync.Mutex
	to      []string
	notices []email.TurnNotice
}

func (f *fakeMailer) SendSelectionTurn(_ context.Context, to string, n email.TurnNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.notices = append(f.notices, n)
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []push.Payload
}

func (f *fakeSender) Send(_ context.Context, _ *model.PushSubscription, p push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return nil
}

func TestSelectionTurnChanged(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	users := store.NewUserStore(db)
	orgs := store.NewOrganizationStore(db)
	groups := store.NewFamilyGroupStore(db)
	pushStore := store.NewPushStore(db)

	admin, _ := users.Create("admin@example.com", "Admin")
	org, err := orgs.Create(store.NewOrganization{Name: "Lake Cabin"}, admin.ID)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	g, err := groups.Create(&model.FamilyGroup{OrganizationID: org.ID, Name: "Anderson", LeadEmail: "lead@example.com", Color: "#336699", Shares: 1})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	member, _ := users.Create("member@example.com", "Member")
	if _, err := orgs.AddMember(org.ID, member.ID, model.RoleMember, &g.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := pushStore.CreateSubscription(member.ID, org.ID, "https://push.example.com/1", "k", "a", "phone"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := &fakeMailer{}
	sender := &fakeSender{}
	hub := websocket.NewHub(logger)
	n := New(mailer, push.NewDispatcher(sender, pushStore, nil, logger), hub, groups, orgs, nil, logger)

	client := websocket.NewClient(hub, nil, org.ID, member.ID)
	hub.Register(client)
	defer hub.Unregister(client)

	deadline := time.Date(2027, 1, 10, 12, 0, 0, 0, time.UTC)
	n.SelectionTurnChanged(context.Background(), selection.TurnEvent{
		OrganizationID: org.ID,
		RotationYear:   2027,
		Phase:          model.PhasePrimary,
		Reason:         selection.ReasonStarted,
		FamilyGroupID:  &g.ID,
		DeadlineAt:     &deadline,
	})
	n.Wait()

	if len(mailer.to) != 1 || mailer.to[0] != "lead@example.com" {
		t.Errorf("emails = %v", mailer.to)
	}
	if mailer.notices[0].OrganizationName != "Lake Cabin" || mailer.notices[0].FamilyGroupName != "Anderson" {
		t.Errorf("notice = %+v", mailer.notices[0])
	}
	if len(sender.sent) != 1 || sender.sent[0].Tag != "selection-2027-primary" {
		t.Errorf("pushes = %+v", sender.sent)
	}
	if hub.ClientCount(org.ID) != 1 {
		t.Fatal("client not registered")
	}
}

func TestRoundEndedOnlyBroadcasts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(logger)
	mailer := &fakeMailer{}
	n := New(mailer, nil, hub, nil, nil, nil, logger)

	n.SelectionTurnChanged(context.Background(), selection.TurnEvent{
		OrganizationID: 3,
		RotationYear:   2027,
		Phase:          model.PhaseSecondary,
		Reason:         selection.ReasonCompleted,
		RoundEnded:     true,
	})
	if len(mailer.to) != 0 {
		t.Errorf("emails sent for ended round: %v", mailer.to)
	}
}

type blockingMailer struct {
	release chan struct{}
	sent    chan string
}

func (b *blockingMailer) SendSelectionTurn(ctx context.Context, to string, _ email.TurnNotice) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.sent <- to
	return nil
}

func TestSlowMailerDoesNotBlockCaller(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	users := store.NewUserStore(db)
	orgs := store.NewOrganizationStore(db)
	groups := store.NewFamilyGroupStore(db)
	pushStore := store.NewPushStore(db)
	admin, _ := users.Create("admin@example.com", "Admin")
	org, err := orgs.Create(store.NewOrganization{Name: "Lake Cabin"}, admin.ID)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	g, err := groups.Create(&model.FamilyGroup{OrganizationID: org.ID, Name: "Baker", LeadEmail: "baker@example.com", Color: "#336699", Shares: 1})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := &blockingMailer{release: make(chan struct{}), sent: make(chan string, 1)}
	n := New(mailer, push.NewDispatcher(&fakeSender{}, pushStore, nil, logger), websocket.NewHub(logger), groups, orgs, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		n.SelectionTurnChanged(ctx, selection.TurnEvent{
			OrganizationID: org.ID,
			RotationYear:   2027,
			Phase:          model.PhasePrimary,
			Reason:         selection.ReasonCompleted,
			FamilyGroupID:  &g.ID,
		})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("SelectionTurnChanged blocked on the mailer")
	}

	// The delivery outlives the request context.
	cancel()
	close(mailer.release)
	n.Wait()
	select {
	case to := <-mailer.sent:
		if to != "baker@example.com" {
			t.Errorf("sent to %q", to)
		}
	default:
		t.Error("email was not sent")
	}
}

func TestMessageShape(t *testing.T) {
	data, err := json.Marshal(websocket.NewMessage("reservation", "updated", 4, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(data, &got)
	if got["type"] != "reservation_updated" || got["entity"] != "reservation" || got["action"] != "updated" {
		t.Errorf("message = %s", data)
	}
}
