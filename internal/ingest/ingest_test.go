package ingest

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/examcell/smartboard/internal/models"
)

const rosterHeader = "Roll Number,Name,Phone Number,Gmail Address,Branch,Year,Exam Hall Number\n"

func TestDetectFormat(t *testing.T) {
	format, err := DetectFormat("students.CSV")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, format)

	format, err = DetectFormat("rooms.xlsm")
	require.NoError(t, err)
	require.Equal(t, FormatXLSX, format)

	_, err = DetectFormat("legacy.xls")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DetectFormat("notes.txt")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseStudentsSingleRow(t *testing.T) {
	csv := rosterHeader + "S1,Alice,9999999999,a@gmail.com,CSE,1,H1\n"

	records, err := ParseStudents("students.csv", strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "S1", rec.RollNumber)
	require.Equal(t, "Alice", rec.Name)
	require.Equal(t, "9999999999", rec.PhoneNumber)
	require.Equal(t, "a@gmail.com", rec.GmailAddress)
	require.Equal(t, models.BranchCSE, rec.Branch)
	require.Equal(t, models.Year1, rec.Year)
	require.Equal(t, "H1", rec.ExamHallNumber)
	require.Equal(t, 2, rec.Line)

	student := rec.Student()
	require.False(t, student.EmailSent)
	require.Equal(t, "H1", student.HallNumber())
}

func TestParseStudentsNormalisesValuesAndHeaders(t *testing.T) {
	csv := "\ufeff  roll no , STUDENT NAME,mobile,Email,dept,year,sec\n" +
		"21cs001 ,  Bob   Builder ,9876543210.0, Bob@GMAIL.com ,ece,,b\n"

	records, err := ParseStudents("roster.csv", strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "21CS001", rec.RollNumber)
	require.Equal(t, "Bob Builder", rec.Name)
	require.Equal(t, "9876543210", rec.PhoneNumber)
	require.Equal(t, "bob@gmail.com", rec.GmailAddress)
	require.Equal(t, models.BranchECE, rec.Branch)
	require.Equal(t, models.DefaultYear, rec.Year)
	require.Equal(t, models.Section("B"), rec.Section)
	require.Empty(t, rec.ExamHallNumber)
}

func TestParseStudentsMissingColumnsRejectsWholeFile(t *testing.T) {
	csv := "Roll Number,Name,Branch\nS1,Alice,CSE\n"

	records, err := ParseStudents("students.csv", strings.NewReader(csv))
	require.Nil(t, records)

	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{"Phone Number", "Gmail Address", "Year"}, missing.Missing)
	require.Contains(t, err.Error(), "Missing required columns: Phone Number, Gmail Address, Year")
}

func TestParseStudentsCollectsRowErrors(t *testing.T) {
	csv := rosterHeader +
		"S1,Alice,9999999999,a@gmail.com,CSE,1,H1\n" +
		",,,,,,\n" +
		"S-2,Bob,12,b@yahoo.com,MBA,7,H2\n" +
		"S3,Carol,,,EEE,4,\n" +
		"s1,Dup,,,CSE,2,\n"

	records, err := ParseStudents("students.csv", strings.NewReader(csv))
	require.Nil(t, records)

	var rowErrs *RowErrors
	require.True(t, errors.As(err, &rowErrs))
	require.Equal(t, 2, rowErrs.Valid)
	require.Len(t, rowErrs.Errors, 2)

	bad := rowErrs.Errors[0]
	require.True(t, strings.HasPrefix(bad, "Row 4: "), bad)
	require.Contains(t, bad, "roll_number: Roll number must be alphanumeric.")
	require.Contains(t, bad, "phone_number:")
	require.Contains(t, bad, "gmail_address: Gmail address must end with @gmail.com.")
	require.Contains(t, bad, `Invalid branch "MBA"`)
	require.Contains(t, bad, `Invalid year "7"`)

	require.True(t, strings.HasPrefix(rowErrs.Errors[1], "Row 6: "), rowErrs.Errors[1])
	require.Contains(t, rowErrs.Errors[1], "duplicate roll number S1 (first seen at row 2)")
}

func TestParseStudentsFromWorkbook(t *testing.T) {
	book := excelize.NewFile()
	t.Cleanup(func() { _ = book.Close() })
	sheet := book.GetSheetName(0)

	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]any{"Roll Number", "Name", "Phone Number", "Gmail Address", "Branch", "Year", "Section", "Exam Hall Number"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]any{"21ME010", "Dinesh", 9123456789, "dinesh@gmail.com", "ME", 3, "A", 204}))
	require.NoError(t, book.SetSheetRow(sheet, "A4", &[]any{"21CIV07", "Esha", "", "", "CIV", "2", "", ""}))

	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	records, err := ParseStudents("roster.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "21ME010", records[0].RollNumber)
	require.Equal(t, "9123456789", records[0].PhoneNumber)
	require.Equal(t, models.Year3, records[0].Year)
	require.Equal(t, "204", records[0].ExamHallNumber)
	require.Equal(t, 2, records[0].Line)

	require.Equal(t, "21CIV07", records[1].RollNumber)
	require.Equal(t, 4, records[1].Line)
}

func TestParseStudentsRejectsUnsupportedExtension(t *testing.T) {
	_, err := ParseStudents("students.xls", strings.NewReader(rosterHeader))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseStudentsEmptyFile(t *testing.T) {
	_, err := ParseStudents("students.csv", strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseStudentsUnreadableFile(t *testing.T) {
	_, err := ParseStudents("students.xlsx", strings.NewReader("this is not a zip"))
	require.ErrorIs(t, err, ErrUnreadableFile)

	_, err = ParseRooms("rooms.xlsm", bytes.NewReader([]byte{0x50, 0x4b, 0x03, 0x04}))
	require.ErrorIs(t, err, ErrUnreadableFile)

	cause := errors.New("connection reset")
	_, err = ParseStudents("students.csv", iotest.ErrReader(cause))
	require.ErrorIs(t, err, ErrUnreadableFile)
	require.ErrorIs(t, err, cause)
}

func TestParseRooms(t *testing.T) {
	csv := "S.No,Roll No,Room No\n1,s1,H1\n2,21cs002,101.0\n"

	records, err := ParseRooms("rooms.csv", strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, []RoomRecord{
		{Line: 2, RollNumber: "S1", RoomNumber: "H1"},
		{Line: 3, RollNumber: "21CS002", RoomNumber: "101"},
	}, records)
}

func TestParseRoomsRowErrorsAndMissingColumns(t *testing.T) {
	csv := "sno,roll no,room no\n1,S1,\n2,S2,H2\n"

	_, err := ParseRooms("rooms.csv", strings.NewReader(csv))
	var rowErrs *RowErrors
	require.True(t, errors.As(err, &rowErrs))
	require.Equal(t, 1, rowErrs.Valid)
	require.Equal(t, []string{"Row 2: Roll number and room number cannot be empty"}, rowErrs.Errors)

	_, err = ParseRooms("rooms.csv", strings.NewReader("Roll No\nS1\n"))
	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, []string{"S.No", "Room No"}, missing.Missing)
}

func TestResolveColumnsPrefersCanonicalLabel(t *testing.T) {
	cols, err := ResolveColumns([]string{"Email", "Gmail Address"}, []Column{
		{Field: "gmail_address", Label: "Gmail Address", Aliases: []string{"Email"}, Required: true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, cols.Index("gmail_address"))
	require.Equal(t, -1, cols.Index("section"))
}

func TestNormalizeStudentReportsFieldErrors(t *testing.T) {
	record, errs := NormalizeStudent(StudentFields{
		RollNumber: " 21cs9 ",
		Name:       "Ravi",
		Branch:     "cse",
		Year:       "2.0",
		Section:    "c",
	})
	require.Nil(t, errs)
	require.Equal(t, "21CS9", record.RollNumber)
	require.Equal(t, models.Year2, record.Year)
	require.Equal(t, models.Section("C"), record.Section)

	_, errs = NormalizeStudent(StudentFields{RollNumber: "21CS9", Name: "Ravi", Branch: "CSE", Section: "Z", GmailAddress: "ravi@outlook.com"})
	require.Equal(t, "Gmail address must end with @gmail.com.", errs["gmail_address"])
	require.Contains(t, errs["section"], `Invalid section "Z"`)
	require.NotContains(t, errs, "year")

	record, errs = NormalizeStudent(StudentFields{RollNumber: "21CS9", Name: "Ravi", Branch: "CSE", Year: "4.00", PhoneNumber: "9876543210.00"})
	require.Nil(t, errs)
	require.Equal(t, models.Year4, record.Year)
	require.Equal(t, "9876543210", record.PhoneNumber)

	_, errs = NormalizeStudent(StudentFields{RollNumber: "21CS9", Name: "Ravi", Branch: "CSE", Year: "2.5"})
	require.Contains(t, errs["year"], "Invalid year")
}
