package handlers

import (
	"errors"
	"strings"

	"github.com/examcell/smartboard/internal/ingest"
	apperrors "github.com/examcell/smartboard/pkg/errors"
)

// ingestError maps parser failures onto API errors. Anything unrecognised
// is passed through and rendered as an internal error.
func ingestError(err error) error {
	var missing *ingest.MissingColumnsError
	var rows *ingest.RowErrors

	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return apperrors.NewFieldError("file", "Unsupported file format. Upload one of: "+strings.Join(ingest.AllowedExtensions(), ", "))
	case errors.Is(err, ingest.ErrEmptyFile):
		return apperrors.NewFieldError("file", "The uploaded file is empty.")
	case errors.Is(err, ingest.ErrUnreadableFile):
		return apperrors.NewFieldError("file", "Error processing file: the upload is not a readable spreadsheet.").WithInternal(err)
	case errors.As(err, &missing):
		return apperrors.NewBadRequest(missing.Error()).WithDetails(map[string]any{
			"missing_columns":  missing.Missing,
			"expected_columns": missing.Expected,
		})
	case errors.As(err, &rows):
		return apperrors.ErrPartialBatch.WithDetails(map[string]any{
			"errors":      rows.Errors,
			"error_count": len(rows.Errors),
			"valid_count": rows.Valid,
		})
	default:
		return err
	}
}
