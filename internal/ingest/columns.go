package ingest

import (
	"fmt"
	"strings"
	"unicode"
)

// Column describes a canonical field and the headers accepted for it.
type Column struct {
	Field    string
	Label    string
	Aliases  []string
	Required bool
}

// ColumnMap maps canonical field names to header indexes.
type ColumnMap map[string]int

// Index returns the header index for field, or -1 when absent.
func (m ColumnMap) Index(field string) int {
	if idx, ok := m[field]; ok {
		return idx
	}
	return -1
}

// MissingColumnsError lists every required column absent from the header.
type MissingColumnsError struct {
	Missing  []string
	Expected []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("Missing required columns: %s. Expected columns: %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Expected, ", "))
}

// ResolveColumns matches header cells against each column's label, field
// name and aliases, in that order, ignoring case, whitespace and punctuation.
func ResolveColumns(header []string, columns []Column) (ColumnMap, error) {
	positions := make(map[string]int, len(header))
	for idx, cell := range header {
		key := normalizeHeader(cell)
		if key == "" {
			continue
		}
		if _, seen := positions[key]; !seen {
			positions[key] = idx
		}
	}

	mapping := make(ColumnMap, len(columns))
	var missing, expected []string
	for _, col := range columns {
		if col.Required {
			expected = append(expected, col.Label)
		}

		candidates := append([]string{col.Label, col.Field}, col.Aliases...)
		for _, candidate := range candidates {
			if idx, ok := positions[normalizeHeader(candidate)]; ok {
				mapping[col.Field] = idx
				break
			}
		}

		if _, found := mapping[col.Field]; !found && col.Required {
			missing = append(missing, col.Label)
		}
	}

	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing, Expected: expected}
	}
	return mapping, nil
}

func normalizeHeader(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
