package enquiry

import (
	"time"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

const Collection = "enquiries"

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"

	// StatusOpen is written by older clients and treated like pending.
	StatusOpen = "open"
)

const PlaceholderPatient = "Not specified"

// DefaultRecentLimit is how many enquiries the dashboard shows.
const DefaultRecentLimit = 3

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

type Record struct {
	ID             string     `json:"id"`
	EnquirerName   string     `json:"enquirerName"`
	EnquirerMobile string     `json:"enquirerMobile"`
	PatientName    string     `json:"patientName"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	CreatedBy      string     `json:"createdBy"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy      string     `json:"updatedBy,omitempty"`
	LastReminder   *time.Time `json:"lastReminder,omitempty"`
	ManualEntry    bool       `json:"_manualEntry,omitempty"`
	QRScan         bool       `json:"_qrScan,omitempty"`
}

func (r *Record) fields() store.Fields {
	f := store.Fields{
		"enquirerName":   r.EnquirerName,
		"enquirerMobile": r.EnquirerMobile,
		"patientName":    r.PatientName,
		"status":         r.Status,
		"createdBy":      r.CreatedBy,
	}
	if r.Subject != "" {
		f["subject"] = r.Subject
	}
	if r.CreatedAt != nil {
		f["createdAt"] = store.Timestamp(*r.CreatedAt)
	}
	if r.ManualEntry {
		f["_manualEntry"] = true
	}
	if r.QRScan {
		f["_qrScan"] = true
	}
	return f
}

func fromDoc(d *store.Document) *Record {
	r := &Record{
		ID:             d.ID,
		EnquirerName:   d.Fields.String("enquirerName"),
		EnquirerMobile: d.Fields.String("enquirerMobile"),
		PatientName:    d.Fields.String("patientName"),
		Subject:        d.Fields.String("subject"),
		Status:         d.Fields.String("status"),
		CreatedBy:      d.Fields.String("createdBy"),
		UpdatedBy:      d.Fields.String("updatedBy"),
		ManualEntry:    d.Fields.Bool("_manualEntry"),
		QRScan:         d.Fields.Bool("_qrScan"),
	}
	if t, ok := d.Fields.Time("createdAt"); ok {
		r.CreatedAt = &t
	}
	if t, ok := d.Fields.Time("updatedAt"); ok {
		r.UpdatedAt = &t
	}
	if t, ok := d.Fields.Time("lastReminder"); ok {
		r.LastReminder = &t
	}
	return r
}

type CreateRequest struct {
	EnquirerName   string `json:"enquirerName"`
	EnquirerMobile string `json:"enquirerMobile"`
	PatientName    string `json:"patientName"`
	Subject        string `json:"subject,omitempty"`
}
