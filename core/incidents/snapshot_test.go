package incidents

import (
	"context"
	"errors"
	"testing"

	"halligan-rms/core/workbook"
)

func seedRosters(t *testing.T, s *Service) {
	t.Helper()
	err := s.store.Update(func(ts *workbook.TableSet) error {
		ts.Table(workbook.SheetRosterPersonnel).Append(workbook.Record{
			"PersonnelID": workbook.String("P-017"),
			"Name":        workbook.String("J. Alvarez"),
			"Rank":        workbook.String("Firefighter"),
		})
		ts.Table(workbook.SheetRosterApparatus).Append(workbook.Record{
			"ApparatusID": workbook.String("A-003"),
			"UnitNumber":  workbook.String("E-1"),
			"CallSign":    workbook.String("Engine 1"),
			"UnitType":    workbook.String("Engine"),
		})
		return nil
	})
	if err != nil {
		t.Fatalf("seed rosters: %v", err)
	}
}

func TestAssignmentDenormalizesRosterIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	seedRosters(t, s)
	draft(t, s, "2024-060")

	n, err := s.AssignPersonnel(ctx, rookie, "2024-060", []string{"J. Alvarez", "Unknown Walk-On", ""}, "Firefighter", 1.5, "E-1")
	if err != nil {
		t.Fatalf("assign personnel: %v", err)
	}
	if n != 2 {
		t.Fatalf("assigned %d, want 2 (blank name skipped)", n)
	}
	rows, _ := s.ListChildren(ctx, workbook.SheetPersonnel, "2024-060")
	if got := rows[0].Get("PersonnelID").Key(); got != "P-017" {
		t.Fatalf("roster member ID = %q, want P-017", got)
	}
	if !rows[1].Get("PersonnelID").IsNull() {
		t.Fatalf("walk-on should carry a null ID, got %q", rows[1].Get("PersonnelID").Key())
	}

	if _, err := s.AssignApparatus(ctx, rookie, "2024-060", []string{"Engine 1"}, "", "Suppression", []string{"Fire attack"}); err != nil {
		t.Fatalf("assign apparatus: %v", err)
	}
	units, _ := s.ListChildren(ctx, workbook.SheetApparatus, "2024-060")
	if got := units[0].Get("ApparatusID").Key(); got != "A-003" {
		t.Fatalf("call-sign fallback did not resolve, ID = %q", got)
	}
}

func TestAssignRequiresExistingIncident(t *testing.T) {
	s := newTestService(t)
	if _, err := s.AssignPersonnel(context.Background(), rookie, "no-such", []string{"X"}, "", 0, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotBundle(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	draft(t, s, "2024-061")
	if _, err := s.AssignPersonnel(ctx, rookie, "2024-061", []string{"A", "B"}, "Firefighter", 2, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := s.AssignPersonnel(ctx, rookie, "2024-061", []string{"C"}, "Officer", 1.5, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := s.AssignApparatus(ctx, rookie, "2024-061", []string{"E-1", "L-2"}, "", "", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := s.AddChildRow(ctx, rookie, workbook.SheetTimes, "2024-061", workbook.Record{
		"Alarm":   workbook.String("23:50"),
		"Arrival": workbook.String("00:04"),
	}); err != nil {
		t.Fatalf("times: %v", err)
	}

	b, err := s.Snapshot(ctx, "2024-061")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if b.Summary.PersonnelCount != 3 || b.Summary.UnitCount != 2 {
		t.Fatalf("summary counts = %d/%d", b.Summary.PersonnelCount, b.Summary.UnitCount)
	}
	if b.Summary.PersonnelByRole["Firefighter"] != 2 || b.Summary.PersonnelByRole["Officer"] != 1 {
		t.Fatalf("by-role = %v", b.Summary.PersonnelByRole)
	}
	if b.Summary.TotalHours != 5.5 {
		t.Fatalf("total hours = %v", b.Summary.TotalHours)
	}
	if b.Summary.ResponseMinutes == nil || *b.Summary.ResponseMinutes != 14 {
		t.Fatalf("response minutes = %v", b.Summary.ResponseMinutes)
	}

	if _, err := s.Snapshot(ctx, "no-such"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing incident: err = %v", err)
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	for _, c := range []struct{ key, typ, date, alarm, arrival string }{
		{"2024-070", "Structure Fire", "2024-01-05", "10:00", "10:08"},
		{"2024-071", "EMS", "2024-01-20", "11:00", "11:04"},
		{"2024-072", "EMS", "2024-02-02", "", ""},
	} {
		if _, err := s.SaveDraft(ctx, rookie, workbook.Record{
			workbook.PrimaryKey: workbook.String(c.key),
			"IncidentType":      workbook.String(c.typ),
			"IncidentDate":      workbook.Parse(c.date),
		}); err != nil {
			t.Fatalf("save %s: %v", c.key, err)
		}
		if c.alarm != "" {
			if err := s.AddChildRow(ctx, rookie, workbook.SheetTimes, c.key, workbook.Record{
				"Alarm":   workbook.String(c.alarm),
				"Arrival": workbook.String(c.arrival),
			}); err != nil {
				t.Fatalf("times %s: %v", c.key, err)
			}
		}
	}

	byType := s.CountByType(ctx, Filter{})
	if len(byType) != 2 || byType[0].Label != "EMS" || byType[0].Count != 2 {
		t.Fatalf("by type = %v", byType)
	}

	byMonth := s.CountByMonth(ctx, Filter{})
	if len(byMonth) != 2 || byMonth[0].Label != "2024-01" || byMonth[0].Count != 2 {
		t.Fatalf("by month = %v", byMonth)
	}

	stats := s.ResponseTimes(ctx, Filter{})
	if stats.Samples != 2 || stats.Excluded != 1 {
		t.Fatalf("samples/excluded = %d/%d", stats.Samples, stats.Excluded)
	}
	if stats.AverageMinutes != 6 || stats.MedianMinutes != 6 || stats.MaxMinutes != 8 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRosterCRUDAndLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	rec, err := s.SaveRosterEntry(ctx, chief, workbook.SheetRosterPersonnel, workbook.Record{
		"PersonnelID": workbook.String("P-001"),
		"Name":        workbook.String("K. Singh"),
		"Rank":        workbook.String("Lieutenant"),
	})
	if err != nil {
		t.Fatalf("create roster entry: %v", err)
	}
	if rec.Get("Rank").Str() != "Lieutenant" {
		t.Fatalf("rank = %q", rec.Get("Rank").Str())
	}

	// Upsert merges by identifier instead of appending a duplicate.
	if _, err := s.SaveRosterEntry(ctx, chief, workbook.SheetRosterPersonnel, workbook.Record{
		"PersonnelID": workbook.String("P-001"),
		"Rank":        workbook.String("Captain"),
	}); err != nil {
		t.Fatalf("update roster entry: %v", err)
	}
	list, err := s.ListRoster(ctx, workbook.SheetRosterPersonnel)
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("roster rows = %d, want 1", len(list))
	}
	if got := list[0].Get("Rank").Str(); got != "Captain" {
		t.Fatalf("merged rank = %q", got)
	}
	if got := list[0].Get("Name").Str(); got != "K. Singh" {
		t.Fatalf("merge dropped untouched field: Name = %q", got)
	}

	if _, err := s.ListRoster(ctx, "Incidents"); err == nil {
		t.Fatalf("non-roster sheet accepted")
	}

	err = s.store.Update(func(ts *workbook.TableSet) error {
		lt := ts.Table("List_IncidentType")
		lt.EnsureColumns([]string{"IncidentType"})
		lt.Append(workbook.Record{"IncidentType": workbook.String("Structure Fire")})
		lt.Append(workbook.Record{"IncidentType": workbook.String("EMS")})
		return nil
	})
	if err != nil {
		t.Fatalf("seed lookup: %v", err)
	}
	lk := s.Lookups(ctx)
	if got := lk["IncidentType"]; len(got) != 2 || got[0] != "Structure Fire" {
		t.Fatalf("lookup values = %v", got)
	}
}
