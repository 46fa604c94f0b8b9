// Package roster derives a visitor's list of patients from their profile and
// visit history.
package roster

import (
	"sort"
	"strings"
	"time"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/domain/visit"
)

const (
	SourceDefault = "default"
	SourceVisit   = "visit"
)

const (
	LabelDefault  = "Default Patient"
	LabelRecently = "Recently"
	labelLayout   = "Jan 2, 2006"
)

type Entry struct {
	Name      string `json:"name"`
	LastVisit string `json:"lastVisit"`
	Source    string `json:"source"`
}

type scored struct {
	entry Entry
	score time.Time
}

// Build collapses visits into one entry per patient name. The profile's
// default patient, when set, is first and never replaced. Other entries keep
// their most recent visit and are ordered newest first, ties in first-seen
// order. A visit without createdAt counts as happening now. Fallback records
// and visits for the placeholder patient name no real patient and are skipped.
func Build(p *profile.Profile, visits []*visit.Record, now time.Time, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.UTC
	}
	byName := make(map[string]*scored)
	var order []*scored

	if p != nil {
		if name := strings.TrimSpace(p.DefaultPatientName); name != "" {
			s := &scored{entry: Entry{Name: name, LastVisit: LabelDefault, Source: SourceDefault}, score: now}
			byName[name] = s
			order = append(order, s)
		}
	}

	for _, v := range visits {
		if v == nil || v.Fallback || v.PatientName == "" || v.PatientName == visit.PlaceholderPatient {
			continue
		}
		score, label := now, LabelRecently
		if v.CreatedAt != nil {
			score = *v.CreatedAt
			label = v.CreatedAt.In(loc).Format(labelLayout)
		}
		existing, ok := byName[v.PatientName]
		switch {
		case !ok:
			s := &scored{entry: Entry{Name: v.PatientName, LastVisit: label, Source: SourceVisit}, score: score}
			byName[v.PatientName] = s
			order = append(order, s)
		case existing.entry.Source == SourceDefault:
		case score.After(existing.score):
			existing.entry.LastVisit = label
			existing.score = score
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if (a.entry.Source == SourceDefault) != (b.entry.Source == SourceDefault) {
			return a.entry.Source == SourceDefault
		}
		return a.score.After(b.score)
	})

	out := make([]Entry, len(order))
	for i, s := range order {
		out[i] = s.entry
	}
	return out
}
