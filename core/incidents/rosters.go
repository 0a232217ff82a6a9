package incidents

import (
	"context"
	"fmt"

	"halligan-rms/core/rbac"
	"halligan-rms/core/workbook"
)

// rosterKeys maps each master roster sheet to its identifying column.
var rosterKeys = map[string]string{
	workbook.SheetRosterPersonnel: "PersonnelID",
	workbook.SheetRosterApparatus: "ApparatusID",
}

// ListRoster returns every row of a master roster sheet in row order.
func (s *Service) ListRoster(ctx context.Context, sheet string) ([]workbook.Record, error) {
	if _, ok := rosterKeys[sheet]; !ok {
		return nil, fmt.Errorf("unknown roster %q", sheet)
	}
	var out []workbook.Record
	s.store.View(func(ts *workbook.TableSet) {
		for _, rec := range ts.Table(sheet).Records {
			out = append(out, rec.Clone())
		}
	})
	return out, nil
}

// SaveRosterEntry upserts one roster row keyed by its identifier column.
// Rosters share the incident write permission; there is no separate roster
// role in the department.
func (s *Service) SaveRosterEntry(ctx context.Context, actor Actor, sheet string, fields workbook.Record) (workbook.Record, error) {
	keyCol, ok := rosterKeys[sheet]
	if !ok {
		return nil, fmt.Errorf("unknown roster %q", sheet)
	}
	if err := s.authorize(actor, rbac.PermWrite); err != nil {
		return nil, err
	}
	key := fields.Get(keyCol).Key()
	if key == "" {
		return nil, fmt.Errorf("%w: %s required", ErrMissingKey, keyCol)
	}
	var saved workbook.Record
	err := s.store.Update(func(ts *workbook.TableSet) error {
		tbl := ts.Table(sheet)
		tbl.Upsert(fields.Clone(), keyCol)
		saved = tbl.FindByKey(keyCol, key).Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "roster.save", key, sheet)
	return saved, nil
}

// ReplaceRoster swaps a master roster's rows wholesale, keeping the ensured
// schema columns. Used by the bulk roster editor; per-row edits go through
// SaveRosterEntry.
func (s *Service) ReplaceRoster(ctx context.Context, actor Actor, sheet string, rows []workbook.Record) error {
	if _, ok := rosterKeys[sheet]; !ok {
		return fmt.Errorf("unknown roster %q", sheet)
	}
	if err := s.authorize(actor, rbac.PermWrite); err != nil {
		return err
	}
	err := s.store.Update(func(ts *workbook.TableSet) error {
		tbl := ts.Table(sheet)
		tbl.Records = nil
		for _, row := range rows {
			tbl.Append(row.Clone())
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, "roster.replace", sheet, fmt.Sprintf("%d rows", len(rows)))
	return nil
}

// Lookups exposes the List_* pick lists keyed by the form field they feed.
func (s *Service) Lookups(ctx context.Context) map[string][]string {
	var out map[string][]string
	s.store.View(func(ts *workbook.TableSet) {
		out = ts.Lookups()
	})
	return out
}
