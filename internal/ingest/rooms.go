package ingest

import (
	"io"
	"strings"

	"github.com/examcell/smartboard/pkg/metrics"
)

// RoomColumns are the columns of an exam room allocation sheet.
var RoomColumns = []Column{
	{Field: "serial", Label: "S.No", Aliases: []string{"Serial No", "Serial Number", "Sl No"}, Required: true},
	{Field: "roll_number", Label: "Roll No", Aliases: []string{"Roll Number", "Roll"}, Required: true},
	{Field: "room_number", Label: "Room No", Aliases: []string{"Room Number", "Exam Hall Number", "Hall No", "Hall Number"}, Required: true},
}

// RoomRecord assigns an exam hall to a roll number.
type RoomRecord struct {
	Line       int    `json:"-"`
	RollNumber string `json:"roll_number"`
	RoomNumber string `json:"room_number"`
}

// ParseRooms reads an allocation sheet with the same all-or-nothing
// semantics as ParseStudents.
func ParseRooms(filename string, r io.Reader) ([]RoomRecord, error) {
	table, err := ReadTable(filename, r)
	if err != nil {
		return nil, err
	}

	cols, err := ResolveColumns(table.Header, RoomColumns)
	if err != nil {
		return nil, err
	}

	var (
		records  []RoomRecord
		failures RowErrors
	)
	for _, row := range table.Rows {
		if row.Blank() {
			continue
		}

		record := RoomRecord{
			Line:       row.Line,
			RollNumber: strings.ToUpper(row.Cell(cols.Index("roll_number"))),
			RoomNumber: cleanNumeric(row.Cell(cols.Index("room_number"))),
		}

		switch {
		case record.RollNumber == "" || record.RoomNumber == "":
			failures.add(row.Line, "Roll number and room number cannot be empty")
		case len(record.RoomNumber) > 20:
			failures.add(row.Line, "Room number %q exceeds 20 characters", record.RoomNumber)
		default:
			records = append(records, record)
			metrics.IngestRows.WithLabelValues("rooms", "valid").Inc()
			continue
		}
		metrics.IngestRows.WithLabelValues("rooms", "invalid").Inc()
	}

	if !failures.empty() {
		failures.Valid = len(records)
		return nil, &failures
	}
	return records, nil
}
