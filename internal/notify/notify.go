// Package notify fans domain events out to email, web push and the
// websocket change feed.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cabinshare/internal/email"
	"github.com/dukerupert/cabinshare/internal/metrics"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/push"
	"github.com/dukerupert/cabinshare/internal/selection"
	"github.com/dukerupert/cabinshare/internal/store"
	"github.com/dukerupert/cabinshare/internal/websocket"
)

// TurnMailer sends selection turn emails.
type TurnMailer interface {
	SendSelectionTurn(ctx context.Context, to string, n email.TurnNotice) error
}

// deliveryTimeout bounds one background email and push delivery.
const deliveryTimeout = 30 * time.Second

type Notifier struct {
	mailer  TurnMailer
	push    *push.Dispatcher
	hub     *websocket.Hub
	groups  *store.FamilyGroupStore
	orgs    *store.OrganizationStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func New(mailer TurnMailer, dispatcher *push.Dispatcher, hub *websocket.Hub, groups *store.FamilyGroupStore, orgs *store.OrganizationStore, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	return &Notifier{
		mailer:  mailer,
		push:    dispatcher,
		hub:     hub,
		groups:  groups,
		orgs:    orgs,
		metrics: m,
		logger:  logger,
	}
}

// Changed broadcasts a mutation to the organization's websocket clients.
func (n *Notifier) Changed(organizationID int64, entity, action string, id int64) {
	n.hub.Broadcast(organizationID, websocket.NewMessage(entity, action, id, nil))
}

// background runs fn off the caller's goroutine. fn's context outlives the
// request that triggered it but not deliveryTimeout.
func (n *Notifier) background(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until pending background deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// SelectionTurnChanged implements selection.Notifier. The websocket event is
// sent right away; email and web push go out in the background.
func (n *Notifier) SelectionTurnChanged(ctx context.Context, ev selection.TurnEvent) {
	extra := map[string]any{
		"rotation_year": ev.RotationYear,
		"phase":         ev.Phase,
		"reason":        ev.Reason,
		"round_ended":   ev.RoundEnded,
	}
	var groupID int64
	if ev.FamilyGroupID != nil {
		groupID = *ev.FamilyGroupID
		extra["family_group_id"] = groupID
	}
	n.hub.Broadcast(ev.OrganizationID, websocket.Message{
		Type:   "selection_turn_changed",
		Entity: "selection",
		Action: "turn_changed",
		ID:     groupID,
		Extra:  extra,
	})

	if ev.FamilyGroupID == nil {
		return
	}
	n.background(ctx, func(ctx context.Context) {
		n.deliverTurn(ctx, ev, groupID)
	})
}

func (n *Notifier) deliverTurn(ctx context.Context, ev selection.TurnEvent, groupID int64) {
	group, err := n.groups.GetByID(ev.OrganizationID, groupID)
	if err != nil || group == nil {
		n.logger.Error("notify: load family group", "family_group_id", groupID, "error", err)
		return
	}
	org, err := n.orgs.GetByID(ev.OrganizationID)
	if err != nil || org == nil {
		n.logger.Error("notify: load organization", "organization_id", ev.OrganizationID, "error", err)
		return
	}

	if group.LeadEmail != "" {
		err := n.mailer.SendSelectionTurn(ctx, group.LeadEmail, email.TurnNotice{
			OrganizationName: org.Name,
			FamilyGroupName:  group.Name,
			RotationYear:     ev.RotationYear,
			Phase:            ev.Phase,
			Deadline:         ev.DeadlineAt,
		})
		n.metrics.Notification("email", err)
		if err != nil {
			n.logger.Warn("notify: selection turn email", "family_group_id", groupID, "error", err)
		}
	}

	body := fmt.Sprintf("It's %s's turn to pick %d dates.", group.Name, ev.RotationYear)
	if ev.DeadlineAt != nil {
		body += " Your turn ends " + ev.DeadlineAt.UTC().Format("Jan 2 15:04 MST") + "."
	}
	n.push.ToFamilyGroup(ctx, ev.OrganizationID, groupID, model.NotifTypeSelectionTurn, push.Payload{
		Title: org.Name + ": your selection turn",
		Body:  body,
		URL:   "/calendar",
		Tag:   fmt.Sprintf("selection-%d-%s", ev.RotationYear, ev.Phase),
	})
}

// ReservationChanged broadcasts a reservation mutation and pushes it to the
// other members of the organization.
func (n *Notifier) ReservationChanged(ctx context.Context, r *model.Reservation, action string, actorID int64) {
	n.Changed(r.OrganizationID, "reservation", action, r.ID)
	payload := push.Payload{
		Title: "Cabin calendar " + action,
		Body:  fmt.Sprintf("%s to %s", r.StartDate, r.EndDate),
		URL:   "/calendar",
		Tag:   fmt.Sprintf("reservation-%d", r.ID),
	}
	orgID := r.OrganizationID
	n.background(ctx, func(ctx context.Context) {
		n.push.ToOrganization(ctx, orgID, actorID, model.NotifTypeReservationChanged, payload)
	})
}
