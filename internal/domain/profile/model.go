package profile

import (
	"time"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

const Collection = "users"

type Profile struct {
	ID                 string     `json:"uid"`
	DisplayName        string     `json:"displayName"`
	Email              string     `json:"email"`
	MobileNumber       string     `json:"mobileNumber,omitempty"`
	DefaultPatientName string     `json:"defaultPatientName,omitempty"`
	IsProfileComplete  bool       `json:"isProfileComplete"`
	Role               string     `json:"role,omitempty"`
	FCMToken           string     `json:"-"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

func (p *Profile) fields() store.Fields {
	f := store.Fields{
		"displayName": p.DisplayName,
		"email":       p.Email,
	}
	if p.CreatedAt != nil {
		f["createdAt"] = store.Timestamp(*p.CreatedAt)
	}
	return f
}

func fromDoc(d *store.Document) *Profile {
	p := &Profile{
		ID:                 d.ID,
		DisplayName:        d.Fields.String("displayName"),
		Email:              d.Fields.String("email"),
		MobileNumber:       d.Fields.String("mobileNumber"),
		DefaultPatientName: d.Fields.String("defaultPatientName"),
		IsProfileComplete:  d.Fields.Bool("isProfileComplete"),
		Role:               d.Fields.String("role"),
		FCMToken:           d.Fields.String("fcmToken"),
	}
	if t, ok := d.Fields.Time("createdAt"); ok {
		p.CreatedAt = &t
	}
	if t, ok := d.Fields.Time("updatedAt"); ok {
		p.UpdatedAt = &t
	}
	return p
}

// CompleteRequest is the onboarding form.
type CompleteRequest struct {
	DisplayName        string `json:"displayName"`
	MobileNumber       string `json:"mobileNumber"`
	DefaultPatientName string `json:"defaultPatientName"`
}

// QRCard is the payload encoded in a visitor's personal QR code.
type QRCard struct {
	VisitorName   string `json:"visitorName"`
	VisitorMobile string `json:"visitorMobile"`
	PatientName   string `json:"patientName"`
}
