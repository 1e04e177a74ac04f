package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/examcell/smartboard/internal/models"
)

// Institution names the sender shown in notification copy.
type Institution struct {
	ShortName string
	Name      string
	Office    string
	Domain    string
}

// DefaultInstitution is used when no institution is configured.
var DefaultInstitution = Institution{
	ShortName: "MITS",
	Name:      "Madanapalle Institute of Technology & Science",
	Office:    "MITS Examination Cell",
	Domain:    "mits.ac.in",
}

const hallBody = `Dear {{.Student.Name}},

Your exam room has been allocated for the upcoming examination.

STUDENT DETAILS:
--------------------------------
Name: {{.Student.Name}}
Roll Number: {{.Student.RollNumber}}
Branch: {{.Student.Branch.DisplayName}}
Year: {{.Student.Year.DisplayName}}{{if .Student.Section}}
Section: {{.Student.Section}}{{end}}
Exam Hall Number: {{.Hall}}
Contact Email: {{.Student.GmailAddress}}

IMPORTANT INSTRUCTIONS:
--------------------------------
- Please arrive at the exam hall at least 30 minutes before the scheduled exam time
- Bring your valid student ID card and hall ticket
- Mobile phones and electronic devices are strictly prohibited in the exam hall
- Reach the venue early to avoid any last-minute rush

Exam Hall Location: Hall Number {{.Hall}}

For any queries, please contact the examination cell.

Best regards,
{{.Institution.Office}}
{{.Institution.Name}}

---
This is an automated message. Please do not reply to this email.`

var hallTemplate = template.Must(template.New("hall").Parse(hallBody))

// HallSubject renders the subject line for a student.
func HallSubject(inst Institution, student *models.Student) string {
	return fmt.Sprintf("Exam Room Allocation - %s | %s", student.RollNumber, inst.ShortName)
}

// RenderHallNotice renders the plain-text exam hall notice.
func RenderHallNotice(inst Institution, student *models.Student) (string, error) {
	var buf bytes.Buffer
	err := hallTemplate.Execute(&buf, struct {
		Student     *models.Student
		Hall        string
		Institution Institution
	}{student, student.HallNumber(), inst})
	if err != nil {
		return "", fmt.Errorf("render hall notice: %w", err)
	}
	return buf.String(), nil
}

// TestSubject and TestBody form the transport configuration check message.
func TestSubject(inst Institution) string {
	return fmt.Sprintf("Test Email - %s Exam System", inst.ShortName)
}

// TestBody is the body of the configuration check message.
func TestBody() string {
	return "This is a test email to verify the outbound mail configuration."
}
