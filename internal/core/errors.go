package core

// errors.go defines the error taxonomy for analysis, ingestion and reports.
//
// Callers should test errors with errors.Is against the sentinels below;
// the typed errors carry the details needed for user-facing messages.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormat indicates the upload could not be parsed as delimited text.
	ErrFormat = errors.New("invalid csv")
	// ErrSchema indicates required columns are missing from the header.
	ErrSchema = errors.New("missing required column")
	// ErrCoercion indicates a numeric column contains a non-numeric value.
	ErrCoercion = errors.New("invalid number")
	// ErrNotFound indicates the dataset or report does not exist for the user.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a report number race lost to another writer.
	ErrConflict = errors.New("conflict")
	// ErrReportExists indicates the dataset already has a report.
	ErrReportExists = errors.New("report already exists for dataset")
	// ErrRender indicates the PDF renderer failed.
	ErrRender = errors.New("report generation failed")
	// ErrEmptyUpload indicates no file content was provided.
	ErrEmptyUpload = errors.New("empty file")
)

// FormatError wraps a parse failure from the CSV reader.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Invalid CSV file: %v", e.Err)
}

func (e *FormatError) Unwrap() []error { return []error{ErrFormat, e.Err} }

// SchemaError lists the required columns that are absent from the header.
type SchemaError struct {
	Missing  []string
	Required []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("CSV is missing required columns: %s. Required columns are: %s.",
		strings.Join(e.Missing, ", "), strings.Join(e.Required, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// CoercionError names the numeric column holding a non-numeric value.
type CoercionError struct {
	Column string
	Line   int // 1-indexed line in the file, header is line 1
	Value  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("Column '%s' must contain numeric values.", e.Column)
}

func (e *CoercionError) Unwrap() error { return ErrCoercion }

// RenderError wraps a renderer failure.
type RenderError struct {
	DatasetID int64
	Err       error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("report generation failed for dataset %d: %v", e.DatasetID, e.Err)
}

func (e *RenderError) Unwrap() []error { return []error{ErrRender, e.Err} }

// IsValidation reports whether err is a user-correctable upload problem.
func IsValidation(err error) bool {
	return errors.Is(err, ErrFormat) ||
		errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrCoercion) ||
		errors.Is(err, ErrEmptyUpload)
}
