package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/cabinshare/internal/metrics"
	"github.com/dukerupert/cabinshare/internal/model"
	"github.com/dukerupert/cabinshare/internal/store"
)

// Dispatcher sends a payload to the subscriptions of an organization,
// honoring each user's notification preferences. Expired subscriptions are
// removed.
type Dispatcher struct {
	sender  Sender
	push    *store.PushStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewDispatcher(sender Sender, pushStore *store.PushStore, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, push: pushStore, metrics: m, logger: logger}
}

// ToFamilyGroup notifies the users linked to a family group.
func (d *Dispatcher) ToFamilyGroup(ctx context.Context, organizationID, familyGroupID int64, notifType string, payload Payload) int {
	subs, err := d.push.ListForFamilyGroup(organizationID, familyGroupID)
	if err != nil {
		d.logger.Error("push: list family group subscriptions", "organization_id", organizationID, "error", err)
		return 0
	}
	return d.send(ctx, subs, notifType, payload, 0)
}

// ToOrganization notifies every subscribed user of the organization except
// excludeUserID.
func (d *Dispatcher) ToOrganization(ctx context.Context, organizationID, excludeUserID int64, notifType string, payload Payload) int {
	subs, err := d.push.ListByOrganization(organizationID)
	if err != nil {
		d.logger.Error("push: list subscriptions", "organization_id", organizationID, "error", err)
		return 0
	}
	return d.send(ctx, subs, notifType, payload, excludeUserID)
}

func (d *Dispatcher) send(ctx context.Context, subs []model.PushSubscription, notifType string, payload Payload, excludeUserID int64) int {
	sent := 0
	for i := range subs {
		sub := &subs[i]
		if sub.UserID == excludeUserID {
			continue
		}
		enabled, err := d.push.IsPreferenceEnabled(sub.UserID, sub.OrganizationID, notifType)
		if err != nil || !enabled {
			continue
		}
		err = d.sender.Send(ctx, sub, payload)
		switch {
		case errors.Is(err, ErrNotConfigured):
			return sent
		case errors.Is(err, ErrExpired):
			if derr := d.push.DeleteByEndpoint(sub.Endpoint); derr != nil {
				d.logger.Error("push: delete expired subscription", "error", derr)
			}
		case err != nil:
			d.logger.Warn("push: send", "type", notifType, "user_id", sub.UserID, "error", err)
		default:
			sent++
		}
		d.metrics.Notification("push", err)
	}
	return sent
}
