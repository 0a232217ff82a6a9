package incidents

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"halligan-rms/core/rbac"
	"halligan-rms/core/workbook"
)

var (
	chief  = Actor{Username: "chief", Role: rbac.RoleAdmin}
	capt   = Actor{Username: "captain", Role: rbac.RoleReviewer}
	rookie = Actor{Username: "rookie", Role: rbac.RoleMember}
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st := workbook.NewStore(filepath.Join(t.TempDir(), "records.xlsx"), nil)
	st.Init()
	return NewService(nil, st, rbac.MustNewPolicy(), nil, nil)
}

func draft(t *testing.T, s *Service, key string) workbook.Record {
	t.Helper()
	rec, err := s.SaveDraft(context.Background(), rookie, workbook.Record{
		workbook.PrimaryKey: workbook.String(key),
		"IncidentType":      workbook.String("Structure Fire"),
		"City":              workbook.String("Millbrook"),
	})
	if err != nil {
		t.Fatalf("save draft %s: %v", key, err)
	}
	return rec
}

func TestSaveDraftNewDefaults(t *testing.T) {
	s := newTestService(t)
	rec := draft(t, s, "2024-001")
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusDraft {
		t.Fatalf("new record status = %q, want Draft", got)
	}
	if got := rec.Get(workbook.ColCreatedBy).Str(); got != "rookie" {
		t.Fatalf("CreatedBy = %q", got)
	}
	if got := rec.Get(workbook.ColArchiveStatus).Str(); got != ArchiveActive {
		t.Fatalf("ArchiveStatus = %q", got)
	}
}

func TestSaveDraftCannotSmuggleStatus(t *testing.T) {
	s := newTestService(t)
	rec, err := s.SaveDraft(context.Background(), rookie, workbook.Record{
		workbook.PrimaryKey:   workbook.String("2024-002"),
		workbook.ColStatus:    workbook.String(StatusApproved),
		workbook.ColCreatedBy: workbook.String("somebody-else"),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusDraft {
		t.Fatalf("status smuggled through save: %q", got)
	}
	if got := rec.Get(workbook.ColCreatedBy).Str(); got != "rookie" {
		t.Fatalf("CreatedBy smuggled through save: %q", got)
	}
}

func TestSaveDraftRequiresKey(t *testing.T) {
	s := newTestService(t)
	_, err := s.SaveDraft(context.Background(), rookie, workbook.Record{"City": workbook.String("Millbrook")})
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("err = %v, want ErrMissingKey", err)
	}
}

func TestSaveDraftRejectedWhileSubmitted(t *testing.T) {
	s := newTestService(t)
	draft(t, s, "2024-003")
	if _, err := s.Submit(context.Background(), rookie, "2024-003"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := s.SaveDraft(context.Background(), rookie, workbook.Record{
		workbook.PrimaryKey: workbook.String("2024-003"),
		"City":              workbook.String("Altered"),
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("editing submitted record: err = %v, want ErrInvalidTransition", err)
	}
	rec, _ := s.Get(context.Background(), "2024-003")
	if got := rec.Get("City").Str(); got != "Millbrook" {
		t.Fatalf("failed edit mutated the record: City = %q", got)
	}
}

func TestFullLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	t1 := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return t1 }

	draft(t, s, "2024-010")
	rec, err := s.Submit(ctx, rookie, "2024-010")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	first := rec.Get(workbook.ColSubmittedAt).Str()
	if first != t1.Format(time.RFC3339) {
		t.Fatalf("SubmittedAt = %q", first)
	}

	rec, err = s.Reject(ctx, capt, "2024-010", "")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := rec.Get(workbook.ColReviewerComments).Str(); got != "Please revise." {
		t.Fatalf("blank rejection comment not defaulted: %q", got)
	}
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusRejected {
		t.Fatalf("status = %q", got)
	}

	if _, err := s.ReopenRejected(ctx, rookie, "2024-010"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, _ = s.Get(ctx, "2024-010")
	if got := rec.Get(workbook.ColSubmittedAt).Str(); got != first {
		t.Fatalf("reopen cleared SubmittedAt: %q", got)
	}

	s.now = func() time.Time { return t2 }
	rec, err = s.Submit(ctx, rookie, "2024-010")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if got := rec.Get(workbook.ColSubmittedAt).Str(); got != t2.Format(time.RFC3339) {
		t.Fatalf("resubmit did not refresh SubmittedAt: %q", got)
	}

	rec, err = s.Approve(ctx, capt, "2024-010", "good work")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := rec.Get(workbook.ColReviewedBy).Str(); got != "captain" {
		t.Fatalf("ReviewedBy = %q", got)
	}
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusApproved {
		t.Fatalf("status = %q", got)
	}
}

func TestTransitionGuards(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	draft(t, s, "2024-020")

	if _, err := s.Approve(ctx, capt, "2024-020", "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve from Draft: err = %v", err)
	}
	if _, err := s.Reject(ctx, capt, "2024-020", "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject from Draft: err = %v", err)
	}
	if _, err := s.Archive(ctx, chief, "2024-020"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("archive from Draft: err = %v", err)
	}
	rec, _ := s.Get(ctx, "2024-020")
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusDraft {
		t.Fatalf("failed transitions mutated status: %q", got)
	}
	if !rec.Get(workbook.ColReviewedBy).IsNull() {
		t.Fatalf("failed transition left reviewer attribution behind")
	}
}

func TestSendBackRetainsSubmittedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t1 }

	draft(t, s, "2024-030")
	if _, err := s.Submit(ctx, rookie, "2024-030"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	rec, err := s.SendBack(ctx, capt, "2024-030", "add times")
	if err != nil {
		t.Fatalf("send back: %v", err)
	}
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusDraft {
		t.Fatalf("status = %q", got)
	}
	if got := rec.Get(workbook.ColSubmittedAt).Str(); got != t1.Format(time.RFC3339) {
		t.Fatalf("send back cleared SubmittedAt: %q", got)
	}
}

func TestPermissionDenials(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	draft(t, s, "2024-040")
	if _, err := s.Submit(ctx, rookie, "2024-040"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := s.Approve(ctx, rookie, "2024-040", ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("member approve: err = %v", err)
	}
	if _, err := s.Reject(ctx, rookie, "2024-040", ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("member reject: err = %v", err)
	}
	rec, _ := s.Get(ctx, "2024-040")
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusSubmitted {
		t.Fatalf("denied transition mutated status: %q", got)
	}
}

func TestCapabilityOverrideBeatsPreset(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	draft(t, s, "2024-041")
	if _, err := s.Submit(ctx, rookie, "2024-041"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	yes, no := true, false
	promoted := Actor{Username: "rookie", Role: rbac.RoleMember, Caps: rbac.Capabilities{Approve: &yes}}
	if _, err := s.Approve(ctx, promoted, "2024-041", "field promotion"); err != nil {
		t.Fatalf("override grant: %v", err)
	}

	demoted := Actor{Username: "captain", Role: rbac.RoleReviewer, Caps: rbac.Capabilities{Write: &no}}
	_, err := s.SaveDraft(ctx, demoted, workbook.Record{workbook.PrimaryKey: workbook.String("2024-042")})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("override revoke: err = %v", err)
	}
}

func TestArchiveAndPurgeCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	draft(t, s, "2024-001")
	draft(t, s, "2024-002")

	if _, err := s.AssignPersonnel(ctx, rookie, "2024-001", []string{"J. Alvarez", "M. Okafor"}, "Firefighter", 2, ""); err != nil {
		t.Fatalf("assign personnel: %v", err)
	}
	if _, err := s.AssignApparatus(ctx, rookie, "2024-001", []string{"E-1"}, "Engine", "Suppression", nil); err != nil {
		t.Fatalf("assign apparatus: %v", err)
	}
	if err := s.AddChildRow(ctx, rookie, workbook.SheetTimes, "2024-001", workbook.Record{
		"Alarm":   workbook.String("14:05"),
		"Arrival": workbook.String("14:12"),
	}); err != nil {
		t.Fatalf("add times: %v", err)
	}
	if _, err := s.AssignPersonnel(ctx, rookie, "2024-002", []string{"K. Singh"}, "Officer", 1, ""); err != nil {
		t.Fatalf("assign other: %v", err)
	}

	if _, err := s.Submit(ctx, rookie, "2024-001"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Approve(ctx, capt, "2024-001", "ok"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rec, err := s.Archive(ctx, chief, "2024-001")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got := rec.Get(workbook.ColStatus).Str(); got != StatusApproved {
		t.Fatalf("archive changed status: %q", got)
	}
	if got := rec.Get(workbook.ColArchiveStatus).Str(); got != ArchiveArchived {
		t.Fatalf("ArchiveStatus = %q", got)
	}

	if err := s.PurgeArchived(ctx, chief, "2024-001", false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("unconfirmed purge: err = %v", err)
	}
	if err := s.PurgeArchived(ctx, chief, "2024-002", true); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("purge of unarchived record: err = %v", err)
	}
	if err := s.PurgeArchived(ctx, capt, "2024-001", true); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("reviewer purge: err = %v", err)
	}
	if err := s.PurgeArchived(ctx, chief, "2024-001", true); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if _, err := s.Get(ctx, "2024-001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("incident survived purge: err = %v", err)
	}
	for _, sheet := range workbook.ChildSheets {
		rows, err := s.ListChildren(ctx, sheet, "2024-001")
		if err != nil {
			t.Fatalf("list %s: %v", sheet, err)
		}
		if len(rows) != 0 {
			t.Fatalf("%s still holds %d rows for purged key", sheet, len(rows))
		}
	}
	rows, _ := s.ListChildren(ctx, workbook.SheetPersonnel, "2024-002")
	if len(rows) != 1 {
		t.Fatalf("purge cascaded into a sibling incident: %d rows", len(rows))
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	draft(t, s, "2024-050")
	draft(t, s, "2024-051")
	if _, err := s.SaveDraft(ctx, rookie, workbook.Record{
		workbook.PrimaryKey: workbook.String("2024-051"),
		"IncidentType":      workbook.String("EMS"),
		"City":              workbook.String("Fort Hale"),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	all := s.List(ctx, Filter{})
	if len(all) != 2 {
		t.Fatalf("unfiltered list = %d records", len(all))
	}
	ems := s.List(ctx, Filter{IncidentType: "EMS"})
	if len(ems) != 1 || ems[0].Get(workbook.PrimaryKey).Key() != "2024-051" {
		t.Fatalf("type filter returned %d records", len(ems))
	}
	city := s.List(ctx, Filter{CityContains: "hale"})
	if len(city) != 1 {
		t.Fatalf("city filter should be case-insensitive substring, got %d", len(city))
	}

	// Archived incidents drop out of the default listing.
	if _, err := s.Submit(ctx, rookie, "2024-050"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Approve(ctx, capt, "2024-050", "ok"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := s.Archive(ctx, chief, "2024-050"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got := len(s.List(ctx, Filter{})); got != 1 {
		t.Fatalf("default list includes archived record, got %d", got)
	}
	if got := len(s.List(ctx, Filter{IncludeArchived: true})); got != 2 {
		t.Fatalf("IncludeArchived list = %d", got)
	}
}
