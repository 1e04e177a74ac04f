package ingest

import (
	"fmt"
	"strings"
)

// RowErrors reports rows that failed validation. Valid is the number of
// rows that passed and would have been imported.
type RowErrors struct {
	Errors []string
	Valid  int
}

func (e *RowErrors) Error() string {
	return fmt.Sprintf("%d row(s) failed validation (%d valid): %s",
		len(e.Errors), e.Valid, strings.Join(e.Errors, "; "))
}

func (e *RowErrors) add(line int, format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf("Row %d: %s", line, fmt.Sprintf(format, args...)))
}

func (e *RowErrors) empty() bool {
	return len(e.Errors) == 0
}
