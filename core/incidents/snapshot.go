package incidents

import (
	"context"

	"halligan-rms/core/workbook"
)

// Bundle is one incident joined with all of its child rows, the shape the
// printable report and the detail view consume.
type Bundle struct {
	Incident  workbook.Record   `json:"incident"`
	Times     []workbook.Record `json:"times"`
	Personnel []workbook.Record `json:"personnel"`
	Apparatus []workbook.Record `json:"apparatus"`
	Actions   []workbook.Record `json:"actions"`
	Summary   Summary           `json:"summary"`
}

// Summary aggregates the on-scene resources for the report header.
type Summary struct {
	PersonnelCount  int            `json:"personnel_count"`
	PersonnelByRole map[string]int `json:"personnel_by_role"`
	UnitCount       int            `json:"unit_count"`
	Units           []string       `json:"units"`
	TotalHours      float64        `json:"total_hours"`
	ResponseMinutes *int           `json:"response_minutes,omitempty"`
}

// Snapshot assembles the full bundle for one incident under a single read
// lock so the report never mixes rows from two different edits.
func (s *Service) Snapshot(ctx context.Context, key string) (*Bundle, error) {
	var b *Bundle
	s.store.View(func(ts *workbook.TableSet) {
		inc := ts.Table(workbook.SheetIncidents).FindByKey(workbook.PrimaryKey, key)
		if inc == nil {
			return
		}
		b = &Bundle{
			Incident:  inc,
			Times:     ts.Table(workbook.SheetTimes).FilterByKey(workbook.PrimaryKey, key),
			Personnel: ts.Table(workbook.SheetPersonnel).FilterByKey(workbook.PrimaryKey, key),
			Apparatus: ts.Table(workbook.SheetApparatus).FilterByKey(workbook.PrimaryKey, key),
			Actions:   ts.Table(workbook.SheetActions).FilterByKey(workbook.PrimaryKey, key),
		}
	})
	if b == nil {
		return nil, ErrNotFound
	}
	b.Summary = summarize(b)
	return b, nil
}

func summarize(b *Bundle) Summary {
	sum := Summary{
		PersonnelCount:  len(b.Personnel),
		PersonnelByRole: map[string]int{},
		UnitCount:       len(b.Apparatus),
	}
	for _, p := range b.Personnel {
		if role := p.Get("Role").Str(); role != "" {
			sum.PersonnelByRole[role]++
		}
		if h := p.Get("Hours"); h.Kind() == workbook.KindNumber {
			sum.TotalHours += h.Num()
		}
	}
	for _, a := range b.Apparatus {
		if unit := a.Get("Unit").Str(); unit != "" {
			sum.Units = append(sum.Units, unit)
		}
	}
	if m, ok := responseMinutes(b.Times); ok {
		sum.ResponseMinutes = &m
	}
	return sum
}

// responseMinutes derives alarm-to-arrival from the first times row carrying
// both clock fields. Malformed or missing times yield no figure at all.
func responseMinutes(times []workbook.Record) (int, bool) {
	for _, row := range times {
		alarm, okA := ParseTimeOfDay(row.Get("Alarm").Key())
		arrival, okB := ParseTimeOfDay(row.Get("Arrival").Key())
		if okA && okB {
			return MinutesBetween(alarm, arrival), true
		}
	}
	return 0, false
}
