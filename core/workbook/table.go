package workbook

// Record is a sparse mapping of column name to cell value. Columns absent
// from the map read as null through Table accessors.
type Record map[string]Value

// Get returns the cell value, null when the column is absent.
func (r Record) Get(col string) Value {
	if r == nil {
		return Null()
	}
	if v, ok := r[col]; ok {
		return v
	}
	return Null()
}

// Clone copies the record so callers can mutate freely.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is a named, ordered collection of records with union-of-columns
// semantics: introducing a column on any record extends every other record
// with null for it. Column order is write-ascending, row order is insertion
// order.
type Table struct {
	Name    string
	Columns []string
	Records []Record
}

func NewTable(name string, columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Name: name, Columns: cols}
}

func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

func (t *Table) addColumn(col string) {
	if !t.HasColumn(col) {
		t.Columns = append(t.Columns, col)
	}
}

// EnsureColumns backfills every required column: existing values are kept,
// missing columns are appended after the current ones and read as null.
// Columns not in the required list are never removed. Idempotent.
func (t *Table) EnsureColumns(required []string) {
	for _, col := range required {
		t.addColumn(col)
	}
}

// Append adds a record, reconciling columns both ways: the table grows any
// new columns the record introduces, and the record's missing columns simply
// read as null.
func (t *Table) Append(rec Record) {
	for col := range rec {
		t.addColumn(col)
	}
	t.Records = append(t.Records, rec.Clone())
}

// Upsert applies candidate by primary key with insert-or-overwrite semantics.
// Identity is the string form of the key cell, so the number 7 matches "7"
// while "07" does not. On a key match every column present in the candidate
// is written into the matched record and all other columns are left alone; a
// merge, not a replace. Every matching record is updated identically when the
// table already holds duplicate keys, since the store enforces no uniqueness.
// Without a match the candidate is appended with columns reconciled against
// the table. No business validation happens here.
func (t *Table) Upsert(candidate Record, keyColumn string) {
	t.addColumn(keyColumn)
	cand := candidate.Clone()
	if _, ok := cand[keyColumn]; !ok {
		// Defensive default; callers should supply the key themselves.
		cand[keyColumn] = Null()
	}
	key := cand.Get(keyColumn).Key()
	matched := false
	for _, rec := range t.Records {
		if rec.Get(keyColumn).Key() != key {
			continue
		}
		matched = true
		for col, v := range cand {
			t.addColumn(col)
			rec[col] = v
		}
	}
	if !matched {
		t.Append(cand)
	}
}

// FilterByKey returns copies of the records whose column string-matches key.
func (t *Table) FilterByKey(column, key string) []Record {
	var out []Record
	for _, rec := range t.Records {
		if rec.Get(column).Key() == key {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// FindByKey returns a copy of the first record whose column string-matches
// key, or nil.
func (t *Table) FindByKey(column, key string) Record {
	for _, rec := range t.Records {
		if rec.Get(column).Key() == key {
			return rec.Clone()
		}
	}
	return nil
}

// DeleteByKey removes every record whose column string-matches key and
// reports how many were dropped.
func (t *Table) DeleteByKey(column, key string) int {
	kept := t.Records[:0]
	removed := 0
	for _, rec := range t.Records {
		if rec.Get(column).Key() == key {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	t.Records = kept
	return removed
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := NewTable(t.Name, t.Columns...)
	out.Records = make([]Record, 0, len(t.Records))
	for _, rec := range t.Records {
		out.Records = append(out.Records, rec.Clone())
	}
	return out
}
