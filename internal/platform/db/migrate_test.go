package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/visitdesk/visitdesk/migrations"
)

func TestLoadMigrations_SortAndSkip(t *testing.T) {
	fsys := fstest.MapFS{
		"010_indexes.sql":   {Data: []byte("SELECT 10;")},
		"001_documents.sql": {Data: []byte("SELECT 1;")},
		"002_timeline.sql":  {Data: []byte("SELECT 2;")},
		"README.md":         {Data: []byte("docs")},
		"notes.sql":         {Data: []byte("no version")},
		"abc_bad.sql":       {Data: []byte("bad prefix")},
	}

	migs, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 || migs[1].Version != 2 || migs[2].Version != 10 {
		t.Errorf("unexpected order: %d %d %d", migs[0].Version, migs[1].Version, migs[2].Version)
	}
	if migs[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected SQL %q", migs[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, fsys).LoadMigrations(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migs, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migs) != 0 {
		t.Errorf("expected none, got %d", len(migs))
	}
}

func TestPendingAndStatuses(t *testing.T) {
	all := []Migration{{Version: 1, Name: "001_a.sql"}, {Version: 2, Name: "002_b.sql"}}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	done := map[int]time.Time{1: at}

	p := pending(all, done)
	if len(p) != 1 || p[0].Version != 2 {
		t.Errorf("unexpected pending %v", p)
	}

	st := statuses(all, done)
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(at) {
		t.Errorf("migration 1 should be applied: %+v", st[0])
	}
	if st[1].Applied {
		t.Errorf("migration 2 should be pending: %+v", st[1])
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migs) == 0 || migs[0].Version != 1 {
		t.Fatalf("expected embedded migrations starting at 1, got %v", migs)
	}
}
