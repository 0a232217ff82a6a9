package incidents

import (
	"context"
	"fmt"
	"strings"

	"halligan-rms/core/rbac"
	"halligan-rms/core/workbook"
)

// ListChildren returns the rows of a child sheet foreign-keyed to the
// incident, in row order.
func (s *Service) ListChildren(ctx context.Context, sheet, key string) ([]workbook.Record, error) {
	if !isChildSheet(sheet) {
		return nil, fmt.Errorf("unknown child table %q", sheet)
	}
	var out []workbook.Record
	s.store.View(func(ts *workbook.TableSet) {
		out = ts.Table(sheet).FilterByKey(workbook.PrimaryKey, key)
	})
	return out, nil
}

// AddChildRow appends one row to a child sheet, stamping the foreign key.
// The parent incident must exist and be editable by the actor.
func (s *Service) AddChildRow(ctx context.Context, actor Actor, sheet, key string, fields workbook.Record) error {
	if err := s.authorize(actor, rbac.PermWrite); err != nil {
		return err
	}
	if !isChildSheet(sheet) {
		return fmt.Errorf("unknown child table %q", sheet)
	}
	err := s.store.Update(func(ts *workbook.TableSet) error {
		if ts.Table(workbook.SheetIncidents).FindByKey(workbook.PrimaryKey, key) == nil {
			return ErrNotFound
		}
		row := fields.Clone()
		row[workbook.PrimaryKey] = workbook.String(key)
		ts.Table(sheet).Append(row)
		return nil
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actor, "incident.child.add", key, sheet)
	return nil
}

// AssignPersonnel bulk-adds roster members to an incident. PersonnelID is
// denormalized from the Personnel roster at assignment time; a name with no
// roster match is still added, with a null ID (unresolved reference, not an
// error).
func (s *Service) AssignPersonnel(ctx context.Context, actor Actor, key string, names []string, role string, hours float64, respondedIn string) (int, error) {
	if err := s.authorize(actor, rbac.PermWrite); err != nil {
		return 0, err
	}
	added := 0
	err := s.store.Update(func(ts *workbook.TableSet) error {
		if ts.Table(workbook.SheetIncidents).FindByKey(workbook.PrimaryKey, key) == nil {
			return ErrNotFound
		}
		roster := ts.Table(workbook.SheetRosterPersonnel)
		child := ts.Table(workbook.SheetPersonnel)
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			row := workbook.Record{
				workbook.PrimaryKey: workbook.String(key),
				"PersonnelID":       rosterID(roster, "Name", name, "PersonnelID"),
				"Name":              workbook.String(name),
				"Role":              workbook.String(role),
				"Hours":             workbook.Number(hours),
			}
			if respondedIn != "" {
				row["RespondedIn"] = workbook.String(respondedIn)
			}
			child.Append(row)
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.audit(ctx, actor, "incident.personnel.assign", key, fmt.Sprintf("added %d", added))
	return added, nil
}

// AssignApparatus bulk-adds units, denormalizing ApparatusID from the
// Apparatus roster by UnitNumber (falling back to CallSign, matching how the
// pick list is labelled).
func (s *Service) AssignApparatus(ctx context.Context, actor Actor, key string, units []string, unitType, role string, actions []string) (int, error) {
	if err := s.authorize(actor, rbac.PermWrite); err != nil {
		return 0, err
	}
	added := 0
	err := s.store.Update(func(ts *workbook.TableSet) error {
		if ts.Table(workbook.SheetIncidents).FindByKey(workbook.PrimaryKey, key) == nil {
			return ErrNotFound
		}
		roster := ts.Table(workbook.SheetRosterApparatus)
		child := ts.Table(workbook.SheetApparatus)
		for _, unit := range units {
			unit = strings.TrimSpace(unit)
			if unit == "" {
				continue
			}
			id := rosterID(roster, "UnitNumber", unit, "ApparatusID")
			if id.IsNull() {
				id = rosterID(roster, "CallSign", unit, "ApparatusID")
			}
			row := workbook.Record{
				workbook.PrimaryKey: workbook.String(key),
				"ApparatusID":       id,
				"Unit":              workbook.String(unit),
				"Role":              workbook.String(role),
			}
			if unitType != "" {
				row["UnitType"] = workbook.String(unitType)
			}
			if len(actions) > 0 {
				row["Actions"] = workbook.String(strings.Join(actions, "; "))
			}
			child.Append(row)
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.audit(ctx, actor, "incident.apparatus.assign", key, fmt.Sprintf("added %d", added))
	return added, nil
}

// rosterID resolves a denormalized identifier from a master roster by label
// equality. Missing roster rows resolve to null, never an error.
func rosterID(roster *workbook.Table, labelCol, label, idCol string) workbook.Value {
	rec := roster.FindByKey(labelCol, label)
	if rec == nil {
		return workbook.Null()
	}
	return rec.Get(idCol)
}

func isChildSheet(sheet string) bool {
	for _, s := range workbook.ChildSheets {
		if s == sheet {
			return true
		}
	}
	return false
}
