package store

import (
	"strings"
	"testing"
)

var _ Repository = (*PG)(nil)

func TestBuildQuery_EqualityAndOrder(t *testing.T) {
	sql, args, err := buildQuery(Query{
		Collection: "visits",
		Where:      []Filter{Eq("createdBy", "u1")},
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1" +
		" AND data @> $2::jsonb ORDER BY data->>$3 DESC NULLS FIRST, id LIMIT 3"
	if sql != want {
		t.Errorf("sql =\n%s\nwant\n%s", sql, want)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[1] != `{"createdBy":"u1"}` {
		t.Errorf("containment filter = %v", args[1])
	}
	if args[2] != "createdAt" {
		t.Errorf("order field arg = %v", args[2])
	}
}

func TestBuildQuery_InFilter(t *testing.T) {
	sql, args, err := buildQuery(Query{
		Collection: "enquiries",
		Where:      []Filter{In("status", "pending", "open")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "data->>$2 = ANY($3::text[])") {
		t.Errorf("missing in clause: %s", sql)
	}
	if !strings.HasSuffix(sql, "ORDER BY id") {
		t.Errorf("expected default id ordering: %s", sql)
	}
	vals, ok := args[2].([]string)
	if !ok || len(vals) != 2 {
		t.Errorf("unexpected in args: %v", args[2])
	}
}

func TestBuildQuery_BoolProbe(t *testing.T) {
	_, args, err := buildQuery(Query{Collection: "visits", Where: []Filter{Eq("_fallback", true)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args[1] != `{"_fallback":true}` {
		t.Errorf("containment filter = %v", args[1])
	}
}

func TestBuildQuery_AscendingNullsLast(t *testing.T) {
	sql, _, err := buildQuery(Query{Collection: "visits/v1/timeline", OrderBy: "timestamp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "ASC NULLS LAST") {
		t.Errorf("expected ascending nulls last: %s", sql)
	}
}
