package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/pkg/phone"
)

var (
	ErrPatientRequired = errors.New("patient name is required")
	ErrVisitorRequired = errors.New("visitor name is required")
	ErrInvalidMobile   = errors.New("invalid mobile number")
	ErrInvalidSource   = errors.New("unknown check-in source")
	ErrEmptyPayload    = errors.New("qr payload is empty")

	ErrNotFound    = errors.New("visit not found")
	ErrForbidden   = errors.New("not allowed to check out this visit")
	ErrUnavailable = errors.New("visit store unavailable")
)

// IsValidation reports whether err was caused by bad input.
func IsValidation(err error) bool {
	for _, target := range []error{ErrPatientRequired, ErrVisitorRequired, ErrInvalidMobile, ErrInvalidSource, ErrEmptyPayload} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type ProfileReader interface {
	Get(ctx context.Context, uid string) (*profile.Profile, error)
}

// Recorder creates and checks out visits. Check-in never fails once input is
// valid: store failures degrade to a fallback record, then to an unpersisted
// temporary one.
type Recorder struct {
	repo        Repository
	profiles    ProfileReader
	countryCode string
	sentinel    string
	logger      zerolog.Logger
	now         func() time.Time
}

func NewRecorder(repo Repository, profiles ProfileReader, countryCode, sentinel string, logger zerolog.Logger) *Recorder {
	if sentinel == "" {
		sentinel = DefaultReceptionPayload
	}
	return &Recorder{
		repo:        repo,
		profiles:    profiles,
		countryCode: countryCode,
		sentinel:    sentinel,
		logger:      logger,
		now:         time.Now,
	}
}

// Sentinel is the payload of the reception desk QR code.
func (r *Recorder) Sentinel() string {
	return r.sentinel
}

func (r *Recorder) CheckIn(ctx context.Context, s auth.Session, req CheckInRequest) (*Record, error) {
	rec := &Record{
		VisitorName: strings.TrimSpace(req.VisitorName),
		PatientName: strings.TrimSpace(req.PatientName),
		HostID:      strings.TrimSpace(req.HostID),
		Purpose:     strings.TrimSpace(req.Purpose),
	}
	if rec.PatientName == "" {
		return nil, ErrPatientRequired
	}

	switch req.Source {
	case "", SourceManual:
		mobile, err := phone.Parse(r.countryCode, req.VisitorMobile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMobile, err)
		}
		rec.VisitorMobile = mobile
		if rec.VisitorName == "" {
			rec.VisitorName = visitorName(s)
		}
		rec.ManualEntry = true
	case SourceQR:
		if rec.VisitorName == "" {
			return nil, ErrVisitorRequired
		}
		if strings.TrimSpace(req.VisitorMobile) != "" {
			mobile, err := phone.Parse(r.countryCode, req.VisitorMobile)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidMobile, err)
			}
			rec.VisitorMobile = mobile
		} else {
			rec.VisitorMobile = PlaceholderMobile
		}
		rec.QRScan = true
		rec.Raw = strings.TrimSpace(req.Raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, req.Source)
	}

	return r.persist(ctx, s, rec), nil
}

// QuickCheckIn records a visit from what is already known about the user.
// A selected patient takes the mobile and visitor name of the last visit to
// that patient; without one the last visit supplies everything; the profile
// fills what is still missing and placeholders fill the rest.
func (r *Recorder) QuickCheckIn(ctx context.Context, s auth.Session, selectedPatient string) *Record {
	selectedPatient = strings.TrimSpace(selectedPatient)
	rec := &Record{PatientName: selectedPatient, QuickCheckIn: true}

	visits, err := r.repo.ListByCreator(ctx, s.UserID)
	if err != nil {
		r.logger.Warn().Err(err).Str("uid", s.UserID).Msg("quick check-in: visit history unavailable")
	}
	if last := latestUsable(visits, selectedPatient); last != nil {
		if rec.PatientName == "" {
			rec.PatientName = last.PatientName
		}
		rec.VisitorMobile = usable(last.VisitorMobile, PlaceholderMobile)
		rec.VisitorName = last.VisitorName
	}

	if rec.PatientName == "" || rec.VisitorMobile == "" || rec.VisitorName == "" {
		p, err := r.profiles.Get(ctx, s.UserID)
		switch {
		case err == nil:
			if rec.PatientName == "" {
				rec.PatientName = p.DefaultPatientName
			}
			if rec.VisitorMobile == "" {
				rec.VisitorMobile = p.MobileNumber
			}
			if rec.VisitorName == "" {
				rec.VisitorName = p.DisplayName
			}
		case !errors.Is(err, profile.ErrNotFound):
			r.logger.Warn().Err(err).Str("uid", s.UserID).Msg("quick check-in: profile unavailable")
		}
	}

	if rec.PatientName == "" {
		rec.PatientName = PlaceholderPatient
	}
	if rec.VisitorMobile == "" {
		rec.VisitorMobile = PlaceholderMobile
	}
	if rec.VisitorName == "" {
		rec.VisitorName = visitorName(s)
	}
	return r.persist(ctx, s, rec)
}

// latestUsable returns the newest non-fallback visit, restricted to patient
// when it is set.
func latestUsable(visits []*Record, patient string) *Record {
	for _, v := range visits {
		if v.Fallback {
			continue
		}
		if patient != "" && v.PatientName != patient {
			continue
		}
		if patient == "" && usable(v.PatientName, PlaceholderPatient) == "" {
			continue
		}
		return v
	}
	return nil
}

func usable(value, placeholder string) string {
	if value == placeholder {
		return ""
	}
	return value
}

func visitorName(s auth.Session) string {
	if n := s.Name(); n != "" {
		return n
	}
	return DefaultVisitorName
}

func (r *Recorder) persist(ctx context.Context, s auth.Session, rec *Record) *Record {
	now := r.now().UTC()
	rec.Status = StatusCheckedIn
	rec.CheckInTime = now
	rec.CreatedAt = &now
	rec.CreatedBy = s.UserID

	err := r.repo.Create(ctx, rec)
	if err == nil {
		return rec
	}
	log := r.logger.With().Str("uid", s.UserID).Logger()
	log.Warn().Err(err).Msg("visit write failed, trying fallback record")

	fb := &Record{
		VisitorName:   visitorName(s),
		VisitorMobile: PlaceholderMobile,
		PatientName:   PlaceholderPatient,
		Status:        StatusCheckedIn,
		CheckInTime:   now,
		CreatedAt:     &now,
		CreatedBy:     s.UserID,
		Fallback:      true,
	}
	err = r.repo.Create(ctx, fb)
	fb.Degraded = true
	if err == nil {
		return fb
	}
	log.Error().Err(err).Msg("fallback visit write failed, returning temporary record")
	fb.ID = TempIDPrefix + uuid.NewString()
	return fb
}

// Checkout moves a visit to checked_out. Temporary ids succeed without a
// store call. Checking out twice rewrites the terminal fields.
func (r *Recorder) Checkout(ctx context.Context, s auth.Session, id string) (*Record, error) {
	now := r.now().UTC()
	if strings.HasPrefix(id, TempIDPrefix) {
		return &Record{ID: id, Status: StatusCheckedOut, CheckOutTime: &now, UpdatedBy: s.UserID}, nil
	}

	rec, err := r.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if rec.CreatedBy != s.UserID && !s.HasRole(auth.StaffRoles...) {
		return nil, ErrForbidden
	}

	out, err := r.repo.Checkout(ctx, id, s.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}

// ScanResult is either a recorded quick check-in or a form for the client to
// confirm.
type ScanResult struct {
	Kind  string          `json:"kind"`
	Visit *Record         `json:"visit,omitempty"`
	Form  *CheckInRequest `json:"form,omitempty"`
}

func (r *Recorder) Scan(ctx context.Context, s auth.Session, raw, selectedPatient string) (*ScanResult, error) {
	p, err := ParsePayload(raw, r.sentinel)
	if err != nil {
		return nil, err
	}
	if p.Kind == ScanQuickCheckIn {
		return &ScanResult{Kind: p.Kind, Visit: r.QuickCheckIn(ctx, s, selectedPatient)}, nil
	}
	return &ScanResult{Kind: p.Kind, Form: p.Form(raw, selectedPatient)}, nil
}

func (r *Recorder) List(ctx context.Context, s auth.Session) ([]*Record, error) {
	return r.repo.ListByCreator(ctx, s.UserID)
}
