package ingest

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/examcell/smartboard/internal/models"
	"github.com/examcell/smartboard/pkg/metrics"
	"github.com/examcell/smartboard/pkg/validator"
)

// StudentColumns are the columns of a student roster sheet.
var StudentColumns = []Column{
	{Field: "roll_number", Label: "Roll Number", Aliases: []string{"Roll No", "Roll", "Regd No", "Registration Number"}, Required: true},
	{Field: "name", Label: "Name", Aliases: []string{"Student Name", "Full Name"}, Required: true},
	{Field: "phone_number", Label: "Phone Number", Aliases: []string{"Phone", "Mobile", "Mobile Number", "Contact Number"}, Required: true},
	{Field: "gmail_address", Label: "Gmail Address", Aliases: []string{"Gmail", "Email", "Email Address", "Mail"}, Required: true},
	{Field: "branch", Label: "Branch", Aliases: []string{"Department", "Dept"}, Required: true},
	{Field: "year", Label: "Year", Aliases: []string{"Study Year", "Academic Year"}, Required: true},
	{Field: "section", Label: "Section", Aliases: []string{"Sec"}},
	{Field: "exam_hall_number", Label: "Exam Hall Number", Aliases: []string{"Exam Hall", "Hall Number", "Hall No", "Room No", "Room Number"}},
}

// StudentRecord is a validated, normalised roster row.
type StudentRecord struct {
	Line           int            `json:"-" validate:"-"`
	RollNumber     string         `json:"roll_number" validate:"required,max=20,rollnumber"`
	Name           string         `json:"name" validate:"required,max=100"`
	PhoneNumber    string         `json:"phone_number" validate:"omitempty,phone"`
	GmailAddress   string         `json:"gmail_address" validate:"omitempty,max=254,email,gmail"`
	Branch         models.Branch  `json:"branch" validate:"-"`
	Year           models.Year    `json:"year" validate:"-"`
	Section        models.Section `json:"section" validate:"-"`
	ExamHallNumber string         `json:"exam_hall_number" validate:"omitempty,max=20"`
}

// Student converts the record into a model value.
func (r StudentRecord) Student() models.Student {
	return models.Student{
		RollNumber:     r.RollNumber,
		Name:           r.Name,
		PhoneNumber:    r.PhoneNumber,
		GmailAddress:   r.GmailAddress,
		Branch:         r.Branch,
		Year:           r.Year,
		Section:        r.Section,
		ExamHallNumber: models.StringPtr(r.ExamHallNumber),
	}
}

// ParseStudents reads a roster upload. Every required column must be
// present or the whole file is rejected with *MissingColumnsError. Rows
// failing validation are collected into *RowErrors; no records are returned
// in that case.
func ParseStudents(filename string, r io.Reader) ([]StudentRecord, error) {
	table, err := ReadTable(filename, r)
	if err != nil {
		return nil, err
	}

	cols, err := ResolveColumns(table.Header, StudentColumns)
	if err != nil {
		return nil, err
	}

	var (
		records  []StudentRecord
		failures RowErrors
		seen     = make(map[string]int)
	)
	for _, row := range table.Rows {
		if row.Blank() {
			continue
		}

		record, fieldErrs := NormalizeStudent(StudentFields{
			RollNumber:     row.Cell(cols.Index("roll_number")),
			Name:           row.Cell(cols.Index("name")),
			PhoneNumber:    row.Cell(cols.Index("phone_number")),
			GmailAddress:   row.Cell(cols.Index("gmail_address")),
			Branch:         row.Cell(cols.Index("branch")),
			Year:           row.Cell(cols.Index("year")),
			Section:        row.Cell(cols.Index("section")),
			ExamHallNumber: row.Cell(cols.Index("exam_hall_number")),
		})
		record.Line = row.Line

		problems := describeFieldErrors(fieldErrs)
		if first, dup := seen[record.RollNumber]; dup && record.RollNumber != "" {
			problems = append(problems, fmt.Sprintf("duplicate roll number %s (first seen at row %d)", record.RollNumber, first))
		}
		if len(problems) > 0 {
			failures.add(row.Line, "%s", strings.Join(problems, "; "))
			metrics.IngestRows.WithLabelValues("students", "invalid").Inc()
			continue
		}

		seen[record.RollNumber] = row.Line
		records = append(records, record)
		metrics.IngestRows.WithLabelValues("students", "valid").Inc()
	}

	if !failures.empty() {
		failures.Valid = len(records)
		return nil, &failures
	}
	return records, nil
}

// StudentFields holds the raw text of a student's attributes.
type StudentFields struct {
	RollNumber     string
	Name           string
	PhoneNumber    string
	GmailAddress   string
	Branch         string
	Year           string
	Section        string
	ExamHallNumber string
}

// NormalizeStudent trims and case-folds raw values and validates them. The
// returned map holds one message per invalid field and is nil when the
// record is valid.
func NormalizeStudent(raw StudentFields) (StudentRecord, map[string]string) {
	record := StudentRecord{
		RollNumber:     strings.ToUpper(strings.TrimSpace(raw.RollNumber)),
		Name:           collapseSpaces(raw.Name),
		PhoneNumber:    cleanNumeric(raw.PhoneNumber),
		GmailAddress:   strings.ToLower(strings.TrimSpace(raw.GmailAddress)),
		ExamHallNumber: cleanNumeric(raw.ExamHallNumber),
	}

	problems := map[string]string{}
	if err := validator.ValidateStruct(&record); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for field, msg := range fieldErrs.Fields() {
				problems[field] = msg
			}
		} else {
			problems["non_field_errors"] = err.Error()
		}
	}

	branch, ok := models.ParseBranch(raw.Branch)
	if !ok {
		problems["branch"] = fmt.Sprintf("Invalid branch %q. Choose from: %s", strings.TrimSpace(raw.Branch), joinBranches())
	}
	record.Branch = branch

	year, ok := models.ParseYear(raw.Year)
	if !ok {
		problems["year"] = fmt.Sprintf("Invalid year %q. Choose from: 1, 2, 3, 4", strings.TrimSpace(raw.Year))
	}
	record.Year = year

	section, ok := models.ParseSection(raw.Section)
	if !ok {
		problems["section"] = fmt.Sprintf("Invalid section %q. Choose from: A, B, C, D, E, F", strings.TrimSpace(raw.Section))
	}
	record.Section = section

	if len(problems) == 0 {
		return record, nil
	}
	return record, problems
}

func describeFieldErrors(fields map[string]string) []string {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+": "+fields[key])
	}
	return out
}

func joinBranches() string {
	branches := models.Branches()
	codes := make([]string, len(branches))
	for i, b := range branches {
		codes[i] = string(b)
	}
	return strings.Join(codes, ", ")
}
