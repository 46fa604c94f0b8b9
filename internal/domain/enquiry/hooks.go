package enquiry

import (
	"context"

	"github.com/visitdesk/visitdesk/internal/domain/timeline"
	"github.com/visitdesk/visitdesk/internal/platform/trigger"
)

// Hooks write enquiry timeline events. The writer must not go through the
// observed repository.
type Hooks struct {
	timeline *timeline.Writer
}

func NewHooks(tl *timeline.Writer) *Hooks {
	return &Hooks{timeline: tl}
}

func (h *Hooks) Register(d *trigger.Dispatcher) {
	d.On(Collection, trigger.Created, "enquiry-created", h.LogCreated)
	d.On(Collection, trigger.Updated, "enquiry-status-changed", h.LogStatusChange)
}

func (h *Hooks) LogCreated(ctx context.Context, ch trigger.Change) error {
	_, err := h.timeline.Append(ctx, Collection, ch.ID, timeline.Event{
		Event: timeline.EventEnquiryCreated,
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
