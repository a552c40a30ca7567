package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/scoutreports/osmsync/pkg/osm"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndListRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Record(ctx, Change{
		SectionID:     "15",
		TermID:        "77",
		MeetingDate:   "2026-03-04",
		ChangeType:    "updated",
		ChangedFields: []string{"title"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	changes, err := db.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	got := changes[0]
	if got.BatchID == "" {
		t.Fatal("a batch id must be assigned when none is given")
	}
	if got.SectionID != "15" || got.MeetingDate != "2026-03-04" || got.ChangeType != "updated" {
		t.Fatalf("unexpected change: %+v", got)
	}
	if len(got.ChangedFields) != 1 || got.ChangedFields[0] != "title" {
		t.Fatalf("changed fields not round-tripped: %+v", got.ChangedFields)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("occurred_at was not parsed")
	}
}

func TestRecordImportSkipsNoOps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	day := func(value string) time.Time {
		d, err := time.Parse(osm.DateFormat, value)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}
	results := []osm.ImportResult{
		{Date: day("2026-03-04"), Created: false, Changes: map[string]string{}},
		{Date: day("2026-03-11"), Created: false, Changes: map[string]string{"title": "Wide game"}},
		{Date: day("2026-03-18"), Created: true, Changes: map[string]string{"title": "Camp prep", "leaders": "Akela"}},
	}

	batchID, err := db.RecordImport(ctx, "15", "77", results)
	if err != nil {
		t.Fatalf("record import: %v", err)
	}
	if batchID == "" {
		t.Fatal("expected a batch id")
	}

	changes, err := db.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("no-op saves must not be journaled; expected 2 rows, got %d", len(changes))
	}
	for _, change := range changes {
		if change.BatchID != batchID {
			t.Fatalf("every row must share the batch id, got %+v", change)
		}
	}
}

func TestStatsGroupsBySection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, c := range []Change{
		{BatchID: "b1", SectionID: "15", TermID: "77", MeetingDate: "2026-03-04", ChangeType: "created"},
		{BatchID: "b1", SectionID: "15", TermID: "77", MeetingDate: "2026-03-11", ChangeType: "updated"},
		{BatchID: "b2", SectionID: "16", TermID: "79", MeetingDate: "2026-03-04", ChangeType: "deleted"},
	} {
		if err := db.Record(ctx, c); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected stats for 2 sections, got %d", len(stats))
	}
	if stats[0].SectionID != "15" || stats[0].ChangeCount != 2 || stats[0].BatchCount != 1 {
		t.Fatalf("unexpected stats for section 15: %+v", stats[0])
	}
	if stats[1].SectionID != "16" || stats[1].ChangeCount != 1 {
		t.Fatalf("unexpected stats for section 16: %+v", stats[1])
	}
}
