package ingest

import (
	"strings"

	"github.com/examcell/smartboard/internal/models"
)

// cleanNumeric undoes spreadsheet float rendering of integer-like cells,
// e.g. "9999999999.0" becomes "9999999999".
func cleanNumeric(value string) string {
	return models.TrimIntegralFraction(value)
}

func collapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
