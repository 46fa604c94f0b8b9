package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/domain/visit"
	"github.com/visitdesk/visitdesk/internal/platform/auth"
)

var ErrNoPatients = errors.New("at least one patient name is required")

type ProfileStore interface {
	Get(ctx context.Context, uid string) (*profile.Profile, error)
	ClearDefaultPatient(ctx context.Context, uid string) error
}

type VisitStore interface {
	ListByCreator(ctx context.Context, uid string) ([]*visit.Record, error)
	DeleteByPatients(ctx context.Context, uid string, names []string) (int, error)
}

type Service struct {
	profiles ProfileStore
	visits   VisitStore
	loc      *time.Location
	now      func() time.Time
}

func NewService(profiles ProfileStore, visits VisitStore, loc *time.Location) *Service {
	return &Service{profiles: profiles, visits: visits, loc: loc, now: time.Now}
}

// Roster returns the caller's patients. Any read failure is returned as-is;
// a partial roster is never built.
func (s *Service) Roster(ctx context.Context, sess auth.Session) ([]Entry, error) {
	p, err := s.profiles.Get(ctx, sess.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		p, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	visits, err := s.visits.ListByCreator(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("load visits: %w", err)
	}
	return Build(p, visits, s.now(), s.loc), nil
}

// DeleteResult reports what DeletePatients removed.
type DeleteResult struct {
	VisitsDeleted  int  `json:"visitsDeleted"`
	DefaultCleared bool `json:"defaultCleared"`
}

// DeletePatients removes every visit of the caller to the named patients and
// clears the default patient when it is among them.
func (s *Service) DeletePatients(ctx context.Context, sess auth.Session, names []string) (DeleteResult, error) {
	set := make(map[string]struct{}, len(names))
	clean := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := set[n]; !dup {
			set[n] = struct{}{}
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return DeleteResult{}, ErrNoPatients
	}

	var res DeleteResult
	n, err := s.visits.DeleteByPatients(ctx, sess.UserID, clean)
	res.VisitsDeleted = n
	if err != nil {
		return res, err
	}

	p, err := s.profiles.Get(ctx, sess.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("load profile: %w", err)
	}
	if _, ok := set[p.DefaultPatientName]; ok {
		if err := s.profiles.ClearDefaultPatient(ctx, sess.UserID); err != nil {
			return res, err
		}
		res.DefaultCleared = true
	}
	return res, nil
}
