package visit

import (
	"time"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

const Collection = "visits"

const (
	StatusCheckedIn  = "checked_in"
	StatusCheckedOut = "checked_out"
)

// Placeholders written when quick check-in finds nothing better.
const (
	PlaceholderPatient = "Not specified"
	PlaceholderMobile  = "Not provided"
	DefaultVisitorName = "Visitor"
)

// TempIDPrefix marks records that could not be persisted at all.
const TempIDPrefix = "temp_"

const (
	SourceManual = "manual"
	SourceQR     = "qr"
)

type Record struct {
	ID            string     `json:"id"`
	VisitorName   string     `json:"visitorName"`
	VisitorMobile string     `json:"visitorMobile"`
	PatientName   string     `json:"patientName"`
	Status        string     `json:"status"`
	CheckInTime   time.Time  `json:"checkInTime"`
	CheckOutTime  *time.Time `json:"checkOutTime,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy     string     `json:"updatedBy,omitempty"`
	HostID        string     `json:"hostId,omitempty"`
	Purpose       string     `json:"purpose,omitempty"`
	Raw           string     `json:"_raw,omitempty"`

	ManualEntry  bool `json:"_manualEntry,omitempty"`
	QuickCheckIn bool `json:"_quickCheckIn,omitempty"`
	QRScan       bool `json:"_qrScan,omitempty"`
	Fallback     bool `json:"_fallback,omitempty"`

	// Degraded is set on records returned from a failed primary write. It is
	// never stored.
	Degraded bool `json:"degraded,omitempty"`
}

// Source names the creation path for display and export.
func (r *Record) Source() string {
	switch {
	case r.Fallback:
		return "fallback"
	case r.QuickCheckIn:
		return "quick"
	case r.QRScan:
		return SourceQR
	default:
		return SourceManual
	}
}

func (r *Record) fields() store.Fields {
	f := store.Fields{
		"visitorName":   r.VisitorName,
		"visitorMobile": r.VisitorMobile,
		"patientName":   r.PatientName,
		"status":        r.Status,
		"checkInTime":   store.Timestamp(r.CheckInTime),
		"createdBy":     r.CreatedBy,
	}
	if r.CreatedAt != nil {
		f["createdAt"] = store.Timestamp(*r.CreatedAt)
	}
	if r.CheckOutTime != nil {
		f["checkOutTime"] = store.Timestamp(*r.CheckOutTime)
	}
	optional := map[string]string{"hostId": r.HostID, "purpose": r.Purpose, "_raw": r.Raw}
	for k, v := range optional {
		if v != "" {
			f[k] = v
		}
	}
	flags := map[string]bool{
		"_manualEntry":  r.ManualEntry,
		"_quickCheckIn": r.QuickCheckIn,
		"_qrScan":       r.QRScan,
		"_fallback":     r.Fallback,
	}
	for k, v := range flags {
		if v {
			f[k] = true
		}
	}
	return f
}

func fromDoc(d *store.Document) *Record {
	r := &Record{
		ID:            d.ID,
		VisitorName:   d.Fields.String("visitorName"),
		VisitorMobile: d.Fields.String("visitorMobile"),
		PatientName:   d.Fields.String("patientName"),
		Status:        d.Fields.String("status"),
		CreatedBy:     d.Fields.String("createdBy"),
		UpdatedBy:     d.Fields.String("updatedBy"),
		HostID:        d.Fields.String("hostId"),
		Purpose:       d.Fields.String("purpose"),
		Raw:           d.Fields.String("_raw"),
		ManualEntry:   d.Fields.Bool("_manualEntry"),
		QuickCheckIn:  d.Fields.Bool("_quickCheckIn"),
		QRScan:        d.Fields.Bool("_qrScan"),
		Fallback:      d.Fields.Bool("_fallback"),
	}
	r.CheckInTime, _ = d.Fields.Time("checkInTime")
	if t, ok := d.Fields.Time("checkOutTime"); ok {
		r.CheckOutTime = &t
	}
	if t, ok := d.Fields.Time("createdAt"); ok {
		r.CreatedAt = &t
	}
	if t, ok := d.Fields.Time("updatedAt"); ok {
		r.UpdatedAt = &t
	}
	return r
}

// CheckInRequest is the manual or QR-prefilled check-in form.
type CheckInRequest struct {
	Source        string `json:"source,omitempty"`
	VisitorName   string `json:"visitorName"`
	VisitorMobile string `json:"visitorMobile"`
	PatientName   string `json:"patientName"`
	HostID        string `json:"hostId,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
	Raw           string `json:"raw,omitempty"`
}
