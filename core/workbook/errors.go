package workbook

import "fmt"

// LoadError reports an unreadable or malformed workbook. The caller receives
// an empty table set alongside it; no partial tables are ever exposed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("workbook load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failed persist. In-memory tables are unaffected; the
// user retries explicitly.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("workbook save %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
