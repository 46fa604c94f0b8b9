package visit

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/domain/timeline"
	"github.com/visitdesk/visitdesk/internal/platform/notification"
	"github.com/visitdesk/visitdesk/internal/platform/trigger"
)

type Notifier interface {
	Send(ctx context.Context, token, userID, templateID string, data map[string]string) (*notification.Notification, error)
}

// Hooks are the visit triggers. timeline and profiles must write and read
// through a repository the dispatcher does not observe.
type Hooks struct {
	timeline *timeline.Writer
	profiles ProfileReader
	notifier Notifier
	logger   zerolog.Logger
}

func NewHooks(tl *timeline.Writer, profiles ProfileReader, notifier Notifier, logger zerolog.Logger) *Hooks {
	return &Hooks{timeline: tl, profiles: profiles, notifier: notifier, logger: logger}
}

func (h *Hooks) Register(d *trigger.Dispatcher) {
	d.On(Collection, trigger.Created, "visit-logged-in", h.LogCheckIn)
	d.On(Collection, trigger.Created, "notify-host", h.NotifyHost)
	d.On(Collection, trigger.Updated, "visit-status-changed", h.LogStatusChange)
}

func (h *Hooks) LogCheckIn(ctx context.Context, ch trigger.Change) error {
	_, err := h.timeline.Append(ctx, Collection, ch.ID, timeline.Event{
		Event: timeline.EventVisitorLoggedIn,
		Actor: ch.After.Fields.String("createdBy"),
	})
	return err
}

func (h *Hooks) LogStatusChange(ctx context.Context, ch trigger.Change) error {
	if !ch.FieldChanged("status") {
		return nil
	}
	_, err := h.timeline.Append(ctx, Collection, ch.ID, timeline.Event{
		Event: timeline.EventStatusChanged,
		Actor: ch.After.Fields.String("updatedBy"),
		From:  ch.Before.Fields.String("status"),
		To:    ch.After.Fields.String("status"),
	})
	return err
}

// NotifyHost pushes a check-in notice to the visit's host, if it names one
// with a registered device.
func (h *Hooks) NotifyHost(ctx context.Context, ch trigger.Change) error {
	hostID := ch.After.Fields.String("hostId")
	if hostID == "" || h.notifier == nil {
		return nil
	}
	host, err := h.profiles.Get(ctx, hostID)
	if errors.Is(err, profile.ErrNotFound) {
		h.logger.Debug().Str("host_id", hostID).Msg("host has no profile, skipping push")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load host profile: %w", err)
	}
	if host.FCMToken == "" {
		h.logger.Debug().Str("host_id", hostID).Msg("host has no device token, skipping push")
		return nil
	}
	_, err = h.notifier.Send(ctx, host.FCMToken, hostID, notification.TemplateVisitorCheckedIn, map[string]string{
		"visitor_name": ch.After.Fields.String("visitorName"),
		"purpose":      ch.After.Fields.String("purpose"),
		"visit_id":     ch.ID,
	})
	return err
}
