package roster

import (
	"testing"
	"time"

	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/domain/visit"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuild_DefaultOnly(t *testing.T) {
	got := Build(&profile.Profile{DefaultPatientName: "Asha"}, nil, now, time.UTC)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].LastVisit != LabelDefault || got[0].Source != SourceDefault {
		t.Errorf("unexpected entry: %+v", got[0])
	}
}

func TestBuild_Empty(t *testing.T) {
	if got := Build(nil, nil, now, nil); len(got) != 0 {
		t.Errorf("expected empty roster, got %+v", got)
	}
	if got := Build(&profile.Profile{}, []*visit.Record{{PatientName: ""}}, now, nil); len(got) != 0 {
		t.Errorf("expected visits without patient to be skipped, got %+v", got)
	}
}

func TestBuild_DefaultAlwaysFirst(t *testing.T) {
	p := &profile.Profile{DefaultPatientName: "Asha"}
	visits := []*visit.Record{
		{PatientName: "Asha", CreatedAt: daysAgo(5)},
		{PatientName: "Ravi", CreatedAt: daysAgo(1)},
	}
	got := Build(p, visits, now, time.UTC)
	if !equal(names(got), []string{"Asha", "Ravi"}) {
		t.Fatalf("unexpected order: %v", names(got))
	}
	if got[0].LastVisit != LabelDefault {
		t.Errorf("default entry must keep its label, got %q", got[0].LastVisit)
	}
	if got[1].LastVisit != "May 31, 2024" {
		t.Errorf("expected formatted date, got %q", got[1].LastVisit)
	}
}

func TestBuild_DefaultBeatsFutureVisit(t *testing.T) {
	future := now.Add(48 * time.Hour)
	got := Build(&profile.Profile{DefaultPatientName: "Asha"}, []*visit.Record{{PatientName: "Ravi", CreatedAt: &future}}, now, time.UTC)
	if !equal(names(got), []string{"Asha", "Ravi"}) {
		t.Errorf("unexpected order: %v", names(got))
	}
}

func TestBuild_CollapsesToLatest(t *testing.T) {
	visits := []*visit.Record{
		{PatientName: "Ravi", CreatedAt: daysAgo(10)},
		{PatientName: "Ravi", CreatedAt: daysAgo(2)},
		{PatientName: "Ravi", CreatedAt: daysAgo(7)},
	}
	got := Build(nil, visits, now, time.UTC)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].LastVisit != "May 30, 2024" {
		t.Errorf("expected label of latest visit, got %q", got[0].LastVisit)
	}
}

func TestBuild_OrderAndTies(t *testing.T) {
	visits := []*visit.Record{
		{PatientName: "Old", CreatedAt: daysAgo(30)},
		{PatientName: "TieA", CreatedAt: daysAgo(3)},
		{PatientName: "TieB", CreatedAt: daysAgo(3)},
		{PatientName: "New", CreatedAt: daysAgo(1)},
	}
	got := Build(nil, visits, now, time.UTC)
	want := []string{"New", "TieA", "TieB", "Old"}
	if !equal(names(got), want) {
		t.Errorf("expected %v, got %v", want, names(got))
	}
}

func TestBuild_UnknownCreatedAtIsRecent(t *testing.T) {
	visits := []*visit.Record{
		{PatientName: "Dated", CreatedAt: daysAgo(1)},
		{PatientName: "Undated"},
	}
	got := Build(nil, visits, now, time.UTC)
	if !equal(names(got), []string{"Undated", "Dated"}) {
		t.Fatalf("unexpected order: %v", names(got))
	}
	if got[0].LastVisit != LabelRecently {
		t.Errorf("expected %q, got %q", LabelRecently, got[0].LastVisit)
	}
}

func TestBuild_LabelUsesLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	late := time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC) // June 1 01:30 IST
	got := Build(nil, []*visit.Record{{PatientName: "Ravi", CreatedAt: &late}}, now, loc)
	if got[0].LastVisit != "Jun 1, 2024" {
		t.Errorf("expected local date, got %q", got[0].LastVisit)
	}
}

func TestBuild_SkipsPlaceholderAndFallbackVisits(t *testing.T) {
	visits := []*visit.Record{
		{PatientName: visit.PlaceholderPatient, CreatedAt: daysAgo(0)},
		{PatientName: "Ravi", CreatedAt: daysAgo(1)},
		{PatientName: "Meena", CreatedAt: daysAgo(2), Fallback: true},
	}
	got := Build(&profile.Profile{DefaultPatientName: "Asha"}, visits, now, time.UTC)
	if want := []string{"Asha", "Ravi"}; !equal(names(got), want) {
		t.Errorf("expected %v, got %v", want, names(got))
	}
}
