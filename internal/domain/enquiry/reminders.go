package enquiry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/domain/timeline"
	"github.com/visitdesk/visitdesk/internal/platform/notification"
	"github.com/visitdesk/visitdesk/internal/platform/store"
)

type Notifier interface {
	Send(ctx context.Context, token, userID, templateID string, data map[string]string) (*notification.Notification, error)
}

type StaffLister interface {
	Privileged(ctx context.Context) ([]*profile.Profile, error)
}

// Reminders nudges reception staff about enquiries nobody has picked up.
type Reminders struct {
	repo     Repository
	staff    StaffLister
	notifier Notifier
	timeline *timeline.Writer
	logger   zerolog.Logger
	now      func() time.Time
}

func NewReminders(repo Repository, staff StaffLister, notifier Notifier, tl *timeline.Writer, logger zerolog.Logger) *Reminders {
	return &Reminders{repo: repo, staff: staff, notifier: notifier, timeline: tl, logger: logger, now: time.Now}
}

type SweepResult struct {
	Enquiries int `json:"enquiries"`
	Reminded  int `json:"reminded"`
	Pushes    int `json:"pushes"`
	Failed    int `json:"failed"`
}

// Sweep sends one reminder per open enquiry to every staff member with a
// registered device. Enquiries are stamped with lastReminder and get a
// reminder_sent timeline event when at least one push went out.
func (r *Reminders) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	open, err := r.repo.ListByStatus(ctx, StatusPending, StatusOpen)
	if err != nil {
		return res, fmt.Errorf("list open enquiries: %w", err)
	}
	res.Enquiries = len(open)
	if len(open) == 0 {
		return res, nil
	}

	staff, err := r.staff.Privileged(ctx)
	if err != nil {
		return res, fmt.Errorf("list staff: %w", err)
	}
	var recipients []*profile.Profile
	for _, p := range staff {
		if p.FCMToken != "" {
			recipients = append(recipients, p)
		}
	}
	if len(recipients) == 0 {
		r.logger.Warn().Int("enquiries", len(open)).Msg("open enquiries but no staff device registered")
		return res, nil
	}

	seen := make(map[string]struct{}, len(open))
	for _, e := range open {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}

		sent := 0
		for _, p := range recipients {
			_, err := r.notifier.Send(ctx, p.FCMToken, p.ID, notification.TemplateEnquiryReminder, map[string]string{
				"enquirer_name": e.EnquirerName,
				"patient_name":  e.PatientName,
				"status":        e.Status,
				"enquiry_id":    e.ID,
			})
			if err != nil {
				res.Failed++
				continue
			}
			sent++
		}
		res.Pushes += sent
		if sent == 0 {
			continue
		}
		res.Reminded++

		now := r.now().UTC()
		log := r.logger.With().Str("enquiry_id", e.ID).Logger()
		if _, err := r.timeline.Append(ctx, Collection, e.ID, timeline.Event{Event: timeline.EventReminderSent, Timestamp: now}); err != nil {
			log.Warn().Err(err).Msg("record reminder event failed")
		}
		if _, err := r.repo.Update(ctx, e.ID, store.Fields{"lastReminder": store.Timestamp(now)}); err != nil {
			log.Warn().Err(err).Msg("stamp lastReminder failed")
		}
	}

	r.logger.Info().
		Int("enquiries", res.Enquiries).
		Int("reminded", res.Reminded).
		Int("pushes", res.Pushes).
		Int("failed", res.Failed).
		Msg("enquiry reminder sweep finished")
	return res, nil
}
