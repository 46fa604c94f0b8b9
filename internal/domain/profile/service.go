package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/internal/platform/store"
	"github.com/visitdesk/visitdesk/pkg/phone"
)

var (
	ErrInvalid    = errors.New("invalid profile")
	ErrIncomplete = errors.New("profile incomplete")
)

type Service struct {
	repo        Repository
	countryCode string
	now         func() time.Time
}

func NewService(repo Repository, countryCode string) *Service {
	return &Service{repo: repo, countryCode: countryCode, now: time.Now}
}

// Ensure returns the caller's profile, creating it from the session on first
// sight. A new profile carries only displayName, email and createdAt.
func (s *Service) Ensure(ctx context.Context, sess auth.Session) (*Profile, error) {
	p, err := s.repo.Get(ctx, sess.UserID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	p = &Profile{ID: sess.UserID, DisplayName: sess.DisplayName, Email: sess.Email, CreatedAt: &now}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, uid string) (*Profile, error) {
	return s.repo.Get(ctx, uid)
}

// Complete validates the onboarding form and marks the profile complete.
func (s *Service) Complete(ctx context.Context, uid string, req CompleteRequest) (*Profile, error) {
	mobile, err := phone.Parse(s.countryCode, req.MobileNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	patient := strings.TrimSpace(req.DefaultPatientName)
	if patient == "" {
		return nil, fmt.Errorf("%w: default patient name is required", ErrInvalid)
	}

	changes := store.Fields{
		"mobileNumber":       mobile,
		"defaultPatientName": patient,
		"isProfileComplete":  true,
		"updatedAt":          store.Timestamp(s.now()),
	}
	if name := strings.TrimSpace(req.DisplayName); name != "" {
		changes["displayName"] = name
	}
	return s.repo.Update(ctx, uid, changes)
}

func (s *Service) SetDeviceToken(ctx context.Context, uid, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalid)
	}
	_, err := s.repo.Update(ctx, uid, store.Fields{"fcmToken": token, "updatedAt": store.Timestamp(s.now())})
	return err
}

// ClearDefaultPatient removes defaultPatientName. isProfileComplete is left
// as it was.
func (s *Service) ClearDefaultPatient(ctx context.Context, uid string) error {
	_, err := s.repo.Update(ctx, uid, store.Fields{"defaultPatientName": nil, "updatedAt": store.Timestamp(s.now())})
	return err
}

// QRCard builds the visitor's personal QR payload. A mobile number is required.
func (s *Service) QRCard(ctx context.Context, sess auth.Session) (QRCard, string, error) {
	p, err := s.repo.Get(ctx, sess.UserID)
	if err != nil {
		return QRCard{}, "", err
	}
	if p.MobileNumber == "" {
		return QRCard{}, "", fmt.Errorf("%w: add a mobile number to use your QR code", ErrIncomplete)
	}
	card := QRCard{VisitorName: p.DisplayName, VisitorMobile: p.MobileNumber, PatientName: p.DefaultPatientName}
	if card.VisitorName == "" {
		card.VisitorName = sess.Name()
	}
	raw, err := json.Marshal(card)
	if err != nil {
		return QRCard{}, "", fmt.Errorf("encode qr card: %w", err)
	}
	return card, string(raw), nil
}

// Privileged lists receptionists and admins.
func (s *Service) Privileged(ctx context.Context) ([]*Profile, error) {
	return s.repo.ListByRoles(ctx, auth.StaffRoles...)
}
