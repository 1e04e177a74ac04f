package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Branch is an academic department code.
type Branch string

const (
	BranchCSE Branch = "CSE"
	BranchCSM Branch = "CSM"
	BranchCAI Branch = "CAI"
	BranchCSD Branch = "CSD"
	BranchCSC Branch = "CSC"
	BranchECE Branch = "ECE"
	BranchEEE Branch = "EEE"
	BranchME  Branch = "ME"
	BranchCIV Branch = "CIV"
)

var branchNames = map[Branch]string{
	BranchCSE: "Computer Science & Engineering (CSE)",
	BranchCSM: "Computer Science & Engineering - AI & ML (CSM)",
	BranchCAI: "Computer Science & Engineering - Artificial Intelligence (CAI)",
	BranchCSD: "Computer Science & Engineering - Data Science (CSD)",
	BranchCSC: "Computer Science & Engineering - Cyber Security (CSC)",
	BranchECE: "Electronics and Communication Engineering (ECE)",
	BranchEEE: "Electrical and Electronics Engineering (EEE)",
	BranchME:  "Mechanical Engineering (ME)",
	BranchCIV: "Civil Engineering (CIV)",
}

// Branches returns every branch in display order.
func Branches() []Branch {
	return []Branch{BranchCSE, BranchCSM, BranchCAI, BranchCSD, BranchCSC, BranchECE, BranchEEE, BranchME, BranchCIV}
}

// ParseBranch normalises and validates a branch code.
func ParseBranch(raw string) (Branch, bool) {
	b := Branch(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := branchNames[b]
	return b, ok
}

// DisplayName returns the long branch name, or the code when unknown.
func (b Branch) DisplayName() string {
	if name, ok := branchNames[b]; ok {
		return name
	}
	return string(b)
}

// Year is the study year, "1" through "4".
type Year string

const (
	Year1 Year = "1"
	Year2 Year = "2"
	Year3 Year = "3"
	Year4 Year = "4"

	DefaultYear = Year1
)

var yearNames = map[Year]string{
	Year1: "1st Year",
	Year2: "2nd Year",
	Year3: "3rd Year",
	Year4: "4th Year",
}

// Years returns every year in order.
func Years() []Year {
	return []Year{Year1, Year2, Year3, Year4}
}

// ParseYear accepts "1".."4" and spreadsheet renderings such as "2.0" or
// "2.00". Empty input yields DefaultYear.
func ParseYear(raw string) (Year, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultYear, true
	}
	y := Year(TrimIntegralFraction(raw))
	_, ok := yearNames[y]
	return y, ok
}

// TrimIntegralFraction undoes spreadsheet float rendering of integer cells:
// "9999999999.0" and "2.00" lose their zero fraction. Anything else is
// returned trimmed but unchanged.
func TrimIntegralFraction(value string) string {
	value = strings.TrimSpace(value)
	whole, fraction, found := strings.Cut(value, ".")
	if !found || fraction == "" || strings.Trim(fraction, "0") != "" {
		return value
	}
	if _, err := strconv.ParseUint(strings.TrimPrefix(whole, "+"), 10, 64); err != nil {
		return value
	}
	return whole
}

// DisplayName returns "1st Year" style labels.
func (y Year) DisplayName() string {
	if name, ok := yearNames[y]; ok {
		return name
	}
	return string(y)
}

// Section is an optional class section letter.
type Section string

// Sections returns every accepted section.
func Sections() []Section {
	return []Section{"A", "B", "C", "D", "E", "F"}
}

// ParseSection validates a section letter. Empty input is accepted as "no section".
func ParseSection(raw string) (Section, bool) {
	s := Section(strings.ToUpper(strings.TrimSpace(raw)))
	if s == "" {
		return s, true
	}
	for _, candidate := range Sections() {
		if s == candidate {
			return s, true
		}
	}
	return s, false
}

// Student is an enrolled student and their exam hall assignment.
type Student struct {
	BaseModel

	Name           string  `gorm:"size:100;not null" json:"name"`
	RollNumber     string  `gorm:"size:20;uniqueIndex;not null" json:"roll_number"`
	PhoneNumber    string  `gorm:"size:16" json:"phone_number"`
	GmailAddress   string  `gorm:"size:254;index" json:"gmail_address"`
	Branch         Branch  `gorm:"size:10;not null;index:idx_students_class,priority:1" json:"branch"`
	Year           Year    `gorm:"size:1;not null;default:'1';index:idx_students_class,priority:2" json:"year"`
	Section        Section `gorm:"size:1;index:idx_students_class,priority:3" json:"section"`
	ExamHallNumber *string `gorm:"size:20;index" json:"exam_hall_number"`
	EmailSent      bool    `gorm:"not null;default:false;index" json:"email_sent"`
}

// HallNumber returns the exam hall or "" when unassigned.
func (s Student) HallNumber() string {
	if s.ExamHallNumber == nil {
		return ""
	}
	return strings.TrimSpace(*s.ExamHallNumber)
}

// HasHall reports whether an exam hall has been assigned.
func (s Student) HasHall() bool {
	return s.HallNumber() != ""
}

// InstitutionalEmail derives the campus mailbox from the roll number.
func (s Student) InstitutionalEmail(domain string) string {
	if domain == "" {
		return ""
	}
	return strings.ToLower(s.RollNumber) + "@" + domain
}

// FullClassInfo renders "<branch name> - <year name>".
func (s Student) FullClassInfo() string {
	return fmt.Sprintf("%s - %s", s.Branch.DisplayName(), s.Year.DisplayName())
}

func (s Student) String() string {
	return fmt.Sprintf("%s - %s (%s %s)", s.RollNumber, s.Name, s.Branch, s.Year)
}

// StudentView is the API rendering of a Student with its derived read-only
// fields.
type StudentView struct {
	Student
	BranchDisplay      string `json:"branch_display"`
	YearDisplay        string `json:"year_display"`
	InstitutionalEmail string `json:"institutional_email"`
	FullClassInfo      string `json:"full_class_info"`
}

// View derives the read-only fields, using domain for the campus mailbox.
func (s Student) View(domain string) StudentView {
	return StudentView{
		Student:            s,
		BranchDisplay:      s.Branch.DisplayName(),
		YearDisplay:        s.Year.DisplayName(),
		InstitutionalEmail: s.InstitutionalEmail(domain),
		FullClassInfo:      s.FullClassInfo(),
	}
}

// StringPtr returns nil for blank strings.
func StringPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
