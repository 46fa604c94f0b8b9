package enquiry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/internal/platform/store"
	"github.com/visitdesk/visitdesk/pkg/phone"
)

var (
	ErrNameRequired      = errors.New("enquirer name is required")
	ErrPatientRequired   = errors.New("patient name is required")
	ErrInvalidMobile     = errors.New("invalid mobile number")
	ErrInvalidStatus     = errors.New("status must be pending, in_progress or resolved")
	ErrProfileIncomplete = errors.New("add a mobile number to your profile first")

	ErrNotFound    = errors.New("enquiry not found")
	ErrForbidden   = errors.New("only reception staff can update enquiries")
	ErrUnavailable = errors.New("enquiries are unavailable, try again")
)

func IsValidation(err error) bool {
	for _, target := range []error{ErrNameRequired, ErrPatientRequired, ErrInvalidMobile, ErrInvalidStatus} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type ProfileReader interface {
	Get(ctx context.Context, uid string) (*profile.Profile, error)
}

type Service struct {
	repo        Repository
	profiles    ProfileReader
	countryCode string
	now         func() time.Time
}

func NewService(repo Repository, profiles ProfileReader, countryCode string) *Service {
	return &Service{repo: repo, profiles: profiles, countryCode: countryCode, now: time.Now}
}

// Create records a manual enquiry. Unlike check-in there is no degraded write;
// a store failure is returned so the user can retry.
func (s *Service) Create(ctx context.Context, sess auth.Session, req CreateRequest) (*Record, error) {
	name := strings.TrimSpace(req.EnquirerName)
	if name == "" {
		return nil, ErrNameRequired
	}
	mobile, err := phone.Parse(s.countryCode, req.EnquirerMobile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMobile, err)
	}
	patient := strings.TrimSpace(req.PatientName)
	if patient == "" {
		return nil, ErrPatientRequired
	}
	return s.create(ctx, sess, &Record{
		EnquirerName:   name,
		EnquirerMobile: mobile,
		PatientName:    patient,
		Subject:        strings.TrimSpace(req.Subject),
		ManualEntry:    true,
	})
}

// CreateFromScan records an enquiry for the signed-in visitor from their
// profile after they scan the reception code.
func (s *Service) CreateFromScan(ctx context.Context, sess auth.Session) (*Record, error) {
	p, err := s.profiles.Get(ctx, sess.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil, ErrProfileIncomplete
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if p.MobileNumber == "" {
		return nil, ErrProfileIncomplete
	}
	name := p.DisplayName
	if name == "" {
		name = sess.Name()
	}
	patient := p.DefaultPatientName
	if patient == "" {
		patient = PlaceholderPatient
	}
	return s.create(ctx, sess, &Record{
		EnquirerName:   name,
		EnquirerMobile: p.MobileNumber,
		PatientName:    patient,
		QRScan:         true,
	})
}

func (s *Service) create(ctx context.Context, sess auth.Session, rec *Record) (*Record, error) {
	now := s.now().UTC()
	rec.Status = StatusPending
	rec.CreatedAt = &now
	rec.CreatedBy = sess.UserID
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return rec, nil
}

// Recent lists the newest enquiries. Staff see everyone's; visitors see
// their own.
func (s *Service) Recent(ctx context.Context, sess auth.Session, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	owner := sess.UserID
	if sess.HasRole(auth.StaffRoles...) {
		owner = ""
	}
	return s.repo.ListRecent(ctx, owner, limit)
}

func (s *Service) UpdateStatus(ctx context.Context, sess auth.Session, id, status string) (*Record, error) {
	if !sess.HasRole(auth.StaffRoles...) {
		return nil, ErrForbidden
	}
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, store.Fields{
		"status":    status,
		"updatedAt": store.Timestamp(s.now()),
		"updatedBy": sess.UserID,
	})
}
