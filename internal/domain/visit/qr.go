package visit

import (
	"encoding/json"
	"strings"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
)

// DefaultReceptionPayload is the deep link printed on the reception desk QR.
const DefaultReceptionPayload = "main://quick-checkin"

const receptionMarker = "quick-checkin"

const (
	ScanQuickCheckIn = "quick_check_in"
	ScanVisitorCard  = "visitor_card"
	ScanText         = "text"
)

// Payload is a classified QR scan.
type Payload struct {
	Kind string
	Card profile.QRCard
	Text string
}

// ParsePayload classifies raw. The reception sentinel wins over everything,
// then a JSON visitor card, then plain text taken as a visitor name.
func ParsePayload(raw, sentinel string) (Payload, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Payload{}, ErrEmptyPayload
	}
	if strings.Contains(s, receptionMarker) || (sentinel != "" && s == sentinel) {
		return Payload{Kind: ScanQuickCheckIn}, nil
	}
	if strings.HasPrefix(s, "{") {
		var card profile.QRCard
		if err := json.Unmarshal([]byte(s), &card); err == nil {
			card.VisitorName = strings.TrimSpace(card.VisitorName)
			card.VisitorMobile = strings.TrimSpace(card.VisitorMobile)
			card.PatientName = strings.TrimSpace(card.PatientName)
			return Payload{Kind: ScanVisitorCard, Card: card}, nil
		}
	}
	return Payload{Kind: ScanText, Text: s}, nil
}

// Form turns a card or text payload into a check-in form. selectedPatient
// fills the patient when the payload has none.
func (p Payload) Form(raw, selectedPatient string) *CheckInRequest {
	f := &CheckInRequest{Source: SourceQR, Raw: strings.TrimSpace(raw), PatientName: strings.TrimSpace(selectedPatient)}
	switch p.Kind {
	case ScanVisitorCard:
		f.VisitorName = p.Card.VisitorName
		f.VisitorMobile = p.Card.VisitorMobile
		if p.Card.PatientName != "" {
			f.PatientName = p.Card.PatientName
		}
	case ScanText:
		f.VisitorName = p.Text
	}
	return f
}
