package workbook

import (
	"sort"
	"sync"

	"halligan-rms/core/utils"
)

// TableSet is the whole in-memory document: every sheet of the backing
// workbook, in sheet order.
type TableSet struct {
	order  []string
	tables map[string]*Table
}

func NewTableSet() *TableSet {
	return &TableSet{tables: map[string]*Table{}}
}

// Table returns the named table, creating an empty one on first reference.
func (ts *TableSet) Table(name string) *Table {
	if t, ok := ts.tables[name]; ok {
		return t
	}
	t := NewTable(name)
	ts.tables[name] = t
	ts.order = append(ts.order, name)
	return t
}

func (ts *TableSet) Has(name string) bool {
	_, ok := ts.tables[name]
	return ok
}

func (ts *TableSet) Names() []string {
	out := make([]string, len(ts.order))
	copy(out, ts.order)
	return out
}

func (ts *TableSet) put(t *Table) {
	if _, ok := ts.tables[t.Name]; !ok {
		ts.order = append(ts.order, t.Name)
	}
	ts.tables[t.Name] = t
}

// EnsureCoreSheets guarantees the sheets and columns the application relies
// on, backfilling with nulls rather than failing on a sparse workbook.
func (ts *TableSet) EnsureCoreSheets() {
	inc := ts.Table(SheetIncidents)
	inc.EnsureColumns([]string{PrimaryKey})
	inc.EnsureColumns(IncidentWorkflowColumns)
	for sheet, cols := range ChildSchemas {
		ts.Table(sheet).EnsureColumns(cols)
	}
	ts.Table(SheetRosterPersonnel).EnsureColumns(PersonnelSchema)
	ts.Table(SheetRosterApparatus).EnsureColumns(ApparatusSchema)
}

// Lookups extracts the option set for every controlled-vocabulary field from
// the List_* sheets: the first column's non-null values, in row order.
func (ts *TableSet) Lookups() map[string][]string {
	out := map[string][]string{}
	for sheet, field := range LookupSheets {
		t, ok := ts.tables[sheet]
		if !ok || len(t.Columns) == 0 {
			continue
		}
		first := t.Columns[0]
		var opts []string
		for _, rec := range t.Records {
			v := rec.Get(first)
			if v.IsNull() {
				continue
			}
			opts = append(opts, v.Display())
		}
		if len(opts) > 0 {
			out[field] = opts
		}
	}
	return out
}

// Clone deep-copies the whole document.
func (ts *TableSet) Clone() *TableSet {
	out := NewTableSet()
	for _, name := range ts.order {
		out.put(ts.tables[name].Clone())
	}
	return out
}

// Store owns the table set and is the single mutation seam. The entire set
// is one shared resource scoped to the deployment; the mutex keeps the
// process internally consistent. Concurrent external edits of the backing
// file are not coordinated with.
type Store struct {
	mu     sync.Mutex
	path   string
	tables *TableSet
	logger *utils.Logger
}

func NewStore(path string, logger *utils.Logger) *Store {
	return &Store{path: path, tables: NewTableSet(), logger: logger}
}

func (s *Store) Path() string { return s.path }

// Load replaces the in-memory table set wholesale from the backing workbook.
// On failure the previous table set is kept and a *LoadError returned;
// partial parses are never installed.
func (s *Store) Load() error {
	ts, err := ReadFile(s.path)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("workbook load failed: %v", err)
		}
		return err
	}
	ts.EnsureCoreSheets()
	s.mu.Lock()
	s.tables = ts
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Printf("workbook loaded path=%s sheets=%d", s.path, len(ts.order))
	}
	return nil
}

// Init installs an empty document with the core sheets, for first runs where
// no workbook exists yet.
func (s *Store) Init() {
	ts := NewTableSet()
	ts.EnsureCoreSheets()
	s.mu.Lock()
	s.tables = ts
	s.mu.Unlock()
}

// Persist serializes every table back to the backing file, overwriting it in
// full. A failed persist leaves in-memory state untouched.
func (s *Store) Persist() error {
	s.mu.Lock()
	snapshot := s.tables.Clone()
	s.mu.Unlock()
	if err := WriteFile(s.path, snapshot); err != nil {
		if s.logger != nil {
			s.logger.Errorf("workbook persist failed: %v", err)
		}
		return err
	}
	if s.logger != nil {
		s.logger.Printf("workbook persisted path=%s", s.path)
	}
	return nil
}

// ExportBytes renders the current document as a downloadable workbook.
func (s *Store) ExportBytes() ([]byte, error) {
	s.mu.Lock()
	snapshot := s.tables.Clone()
	s.mu.Unlock()
	return WriteBytes(snapshot)
}

// Update runs fn with exclusive access to the live table set. All mutation
// goes through here; fn must not retain the set past its return.
func (s *Store) Update(fn func(ts *TableSet) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.tables)
}

// View runs fn against a deep copy, so readers never observe concurrent
// mutation and cannot mutate the live set by accident.
func (s *Store) View(fn func(ts *TableSet)) {
	s.mu.Lock()
	snapshot := s.tables.Clone()
	s.mu.Unlock()
	fn(snapshot)
}

// SortedNames is a stable listing helper for diagnostics.
func (s *Store) SortedNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.tables.Names()
	sort.Strings(names)
	return names
}
