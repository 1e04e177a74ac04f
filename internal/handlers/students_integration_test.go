package handlers_test

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/examcell/smartboard/internal/handlers/testutil"
	"github.com/examcell/smartboard/internal/models"
)

const rosterHeader = "Roll Number,Name,Phone Number,Gmail Address,Branch,Year,Section,Exam Hall Number\n"

const roster = rosterHeader +
	"S1,Alice,9999999999,a@gmail.com,CSE,1,A,H1\n" +
	"S2,Bob,9999999998,,ECE,2,,H2\n" +
	"S3,Carol,9999999997,c@gmail.com,CSE,1,B,\n"

type uploadResult struct {
	Message        string           `json:"message"`
	CreatedCount   int              `json:"created_count"`
	UpdatedCount   int              `json:"updated_count"`
	TotalProcessed int              `json:"total_processed"`
	EmailsSent     int              `json:"emails_sent"`
	EmailFailures  int              `json:"email_failures"`
	EmailResults   []map[string]any `json:"email_results"`
}

type bulkResult struct {
	TotalStudents int              `json:"total_students"`
	EmailsSent    int              `json:"emails_sent"`
	EmailFailures int              `json:"email_failures"`
	Skipped       int              `json:"skipped"`
	Results       []map[string]any `json:"results"`
}

func uploadRoster(t *testing.T, env *testutil.Env, token, content string, sendEmails bool) uploadResult {
	t.Helper()
	fields := map[string]string{}
	if sendEmails {
		fields["send_emails"] = "true"
	}
	resp := env.Upload("/api/students/upload", "roster.csv", []byte(content), fields, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var result uploadResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &result)
	return result
}

func studentByRoll(t *testing.T, env *testutil.Env, roll string) models.Student {
	t.Helper()
	var student models.Student
	require.NoError(t, env.DB.First(&student, "roll_number = ?", roll).Error)
	return student
}

func TestStudentsHandler_RequiresAuthentication(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/api/students", "/api/students/statistics", "/api/branches"} {
		resp := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
}

func TestStudentsHandler_UploadScenario(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()

	result := uploadRoster(t, env, token, "Roll Number,Name,Phone Number,Gmail Address,Branch,Year,Exam Hall Number\n"+
		"S1,Alice,9999999999,a@gmail.com,CSE,1,H1\n", false)
	require.Equal(t, "File processed successfully", result.Message)
	require.Equal(t, 1, result.CreatedCount)
	require.Equal(t, 1, result.TotalProcessed)
	require.Zero(t, result.EmailsSent)
	require.Empty(t, result.EmailResults)

	student := studentByRoll(t, env, "S1")
	require.False(t, student.EmailSent)
	require.Empty(t, env.Mailer.Sent())
}

func TestStudentsHandler_UploadIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()

	first := uploadRoster(t, env, token, roster, false)
	require.Equal(t, 3, first.CreatedCount)

	second := uploadRoster(t, env, token, roster, false)
	require.Zero(t, second.CreatedCount)
	require.Equal(t, 3, second.UpdatedCount)

	var count int64
	require.NoError(t, env.DB.Model(&models.Student{}).Count(&count).Error)
	require.Equal(t, int64(3), count)
}

func TestStudentsHandler_UploadWithEmails(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()

	result := uploadRoster(t, env, token, roster, true)
	require.Equal(t, 1, result.EmailsSent)
	require.Equal(t, 2, result.EmailFailures)
	require.Len(t, result.EmailResults, 3)

	sent := env.Mailer.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"a@gmail.com"}, sent[0].To)
	require.True(t, studentByRoll(t, env, "S1").EmailSent)
	require.False(t, studentByRoll(t, env, "S3").EmailSent)
}

func TestStudentsHandler_UploadRejectsBadFiles(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()

	missingFile := env.Upload("/api/students/upload", "", nil, nil, token)
	require.Equal(t, http.StatusBadRequest, missingFile.Code)
	require.Contains(t, testutil.ErrorDetails(t, testutil.DecodeResponse(t, missingFile)), "file")

	wrongType := env.Upload("/api/students/upload", "roster.pdf", []byte("%PDF"), nil, token)
	require.Equal(t, http.StatusBadRequest, wrongType.Code)
	require.Contains(t, testutil.ErrorDetails(t, testutil.DecodeResponse(t, wrongType)), "file")

	corrupt := env.Upload("/api/students/upload", "roster.xlsx", []byte("this is not a zip"), nil, token)
	require.Equal(t, http.StatusBadRequest, corrupt.Code, corrupt.Body.String())
	corruptDecoded := testutil.DecodeResponse(t, corrupt)
	require.Equal(t, "VALIDATION_ERROR", corruptDecoded.Error.Code)
	require.Contains(t, testutil.ErrorDetails(t, corruptDecoded), "file")

	corruptRooms := env.Upload("/api/students/upload-rooms", "rooms.xlsx", []byte("this is not a zip"), nil, token)
	require.Equal(t, http.StatusBadRequest, corruptRooms.Code, corruptRooms.Body.String())
	require.Contains(t, testutil.ErrorDetails(t, testutil.DecodeResponse(t, corruptRooms)), "file")

	missingColumns := env.Upload("/api/students/upload", "roster.csv", []byte("Roll Number,Name\nS1,Alice\n"), nil, token)
	require.Equal(t, http.StatusBadRequest, missingColumns.Code)
	details := testutil.ErrorDetails(t, testutil.DecodeResponse(t, missingColumns))
	missing, ok := details["missing_columns"].([]any)
	require.True(t, ok)
	require.Contains(t, missing, "Branch")

	badRows := env.Upload("/api/students/upload", "roster.csv", []byte(rosterHeader+
		"S1,Alice,9999999999,a@gmail.com,CSE,1,A,H1\n"+
		"S2,Bob,9999999998,bob@yahoo.com,XYZ,1,,\n"), nil, token)
	require.Equal(t, http.StatusBadRequest, badRows.Code)
	decoded := testutil.DecodeResponse(t, badRows)
	require.Equal(t, "PARTIAL_BATCH_FAILURE", decoded.Error.Code)
	details = testutil.ErrorDetails(t, decoded)
	require.EqualValues(t, 1, details["valid_count"])

	var count int64
	require.NoError(t, env.DB.Model(&models.Student{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestStudentsHandler_UploadRejectsOversizedFiles(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithMaxUploadMB(1))
	token := env.AccessToken()

	big := rosterHeader + strings.Repeat("S1,Alice,9999999999,a@gmail.com,CSE,1,A,H1\n", 30000)
	resp := env.Upload("/api/students/upload", "roster.csv", []byte(big), nil, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, testutil.ErrorDetails(t, testutil.DecodeResponse(t, resp)), "file")
}

func TestStudentsHandler_UploadRooms(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()
	uploadRoster(t, env, token, roster, false)

	resp := env.Upload("/api/students/upload-rooms", "rooms.csv", []byte("S.No,Roll No,Room No\n1,S3,H7\n2,S9,H8\n"), nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result struct {
		UpdatedCount int      `json:"updated_count"`
		NotFound     []string `json:"not_found"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &result)
	require.Equal(t, 1, result.UpdatedCount)
	require.Equal(t, []string{"S9"}, result.NotFound)
	carol := studentByRoll(t, env, "S3")
	require.Equal(t, "H7", carol.HallNumber())
}

func TestStudentsHandler_CRUD(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()

	create := env.Request(http.MethodPost, "/api/students", map[string]any{
		"roll_number":   "21CS001",
		"name":          "Ravi",
		"phone_number":  "9876543210",
		"gmail_address": "ravi@gmail.com",
		"branch":        "cse",
		"year":          "3",
		"section":       "c",
	}, token)
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())
	var created models.StudentView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, create).Data, &created)
	require.Equal(t, models.BranchCSE, created.Branch)
	require.Equal(t, models.Section("C"), created.Section)
	require.Equal(t, "Computer Science & Engineering (CSE)", created.BranchDisplay)
	require.Equal(t, "3rd Year", created.YearDisplay)
	require.Equal(t, "21cs001@mits.ac.in", created.InstitutionalEmail)
	require.Equal(t, "Computer Science & Engineering (CSE) - 3rd Year", created.FullClassInfo)

	duplicate := env.Request(http.MethodPost, "/api/students", map[string]any{
		"roll_number": "21CS001",
		"name":        "Other",
		"branch":      "CSE",
	}, token)
	require.Equal(t, http.StatusConflict, duplicate.Code)

	invalid := env.Request(http.MethodPost, "/api/students", map[string]any{"branch": "MBA"}, token)
	require.Equal(t, http.StatusBadRequest, invalid.Code)
	details := testutil.ErrorDetails(t, testutil.DecodeResponse(t, invalid))
	require.Contains(t, details, "roll_number")
	require.Contains(t, details, "branch")

	get := env.Request(http.MethodGet, "/api/students/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, get.Code)

	update := env.Request(http.MethodPut, "/api/students/"+created.ID, map[string]any{
		"roll_number":      "21CS001",
		"name":             "Ravi Kumar",
		"branch":           "CSM",
		"year":             "3",
		"exam_hall_number": "B-12",
	}, token)
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())
	var updated models.Student
	testutil.DecodeInto(t, testutil.DecodeResponse(t, update).Data, &updated)
	require.Equal(t, "Ravi Kumar", updated.Name)
	require.Equal(t, "B-12", updated.HallNumber())

	del := env.Request(http.MethodDelete, "/api/students/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, del.Code)

	gone := env.Request(http.MethodGet, "/api/students/"+created.ID, nil, token)
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestStudentsHandler_EmailSentIsReadOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()

	create := env.Request(http.MethodPost, "/api/students", map[string]any{
		"roll_number":      "21CS002",
		"name":             "Meena",
		"gmail_address":    "meena@gmail.com",
		"branch":           "CSE",
		"year":             "2",
		"exam_hall_number": "H4",
		"email_sent":       true,
	}, token)
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())
	var created models.StudentView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, create).Data, &created)
	require.False(t, created.EmailSent)
	require.False(t, studentByRoll(t, env, "21CS002").EmailSent)

	update := env.Request(http.MethodPut, "/api/students/"+created.ID, map[string]any{
		"roll_number": "21CS002",
		"name":        "Meena",
		"branch":      "CSE",
		"year":        "2",
		"email_sent":  true,
	}, token)
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())
	require.False(t, studentByRoll(t, env, "21CS002").EmailSent)
	require.Empty(t, env.Mailer.Sent())

	pending := env.Request(http.MethodGet, "/api/students?email_sent=false", nil, token)
	require.EqualValues(t, 1, testutil.DecodeResponse(t, pending).Meta.Total)
}

func TestStudentsHandler_RendersDerivedFieldsWithConfiguredDomain(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithInstitutionDomain("campus.example.edu"))
	token := env.AccessToken()
	uploadRoster(t, env, token, roster, false)

	list := env.Request(http.MethodGet, "/api/students?roll_number=S2", nil, token)
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())
	var page []map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &page)
	require.Len(t, page, 1)
	require.Equal(t, "Electronics and Communication Engineering (ECE)", page[0]["branch_display"])
	require.Equal(t, "2nd Year", page[0]["year_display"])
	require.Equal(t, "s2@campus.example.edu", page[0]["institutional_email"])
	require.Equal(t, "Electronics and Communication Engineering (ECE) - 2nd Year", page[0]["full_class_info"])
	require.Equal(t, "S2", page[0]["roll_number"])

	bob := studentByRoll(t, env, "S2")
	get := env.Request(http.MethodGet, "/api/students/"+bob.ID, nil, token)
	var view models.StudentView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, get).Data, &view)
	require.Equal(t, "s2@campus.example.edu", view.InstitutionalEmail)
	require.Equal(t, "H2", view.HallNumber())
}

func TestStudentsHandler_ListFiltersAndPaginates(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()
	uploadRoster(t, env, token, roster, false)

	resp := env.Request(http.MethodGet, "/api/students?branch=cse&per_page=1&page=2", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	decoded := testutil.DecodeResponse(t, resp)
	require.NotNil(t, decoded.Meta)
	require.EqualValues(t, 2, decoded.Meta.Total)
	require.Equal(t, 2, decoded.Meta.Page)

	var page []models.Student
	testutil.DecodeInto(t, decoded.Data, &page)
	require.Len(t, page, 1)
	require.Equal(t, "S3", page[0].RollNumber)

	gmail := env.Request(http.MethodGet, "/api/students?gmail=gmail.com&email_sent=false", nil, token)
	var withGmail []models.Student
	testutil.DecodeInto(t, testutil.DecodeResponse(t, gmail).Data, &withGmail)
	require.Len(t, withGmail, 2)
}

func TestStudentsHandler_SendEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()
	uploadRoster(t, env, token, roster, false)

	alice := studentByRoll(t, env, "S1")
	ok := env.Request(http.MethodPost, "/api/students/"+alice.ID+"/send-email", nil, token)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	var sent struct {
		Student     models.Student `json:"student"`
		EmailResult map[string]any `json:"email_result"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, ok).Data, &sent)
	require.True(t, sent.Student.EmailSent)
	require.Equal(t, true, sent.EmailResult["success"])

	carol := studentByRoll(t, env, "S3")
	noRoom := env.Request(http.MethodPost, "/api/students/"+carol.ID+"/send-email", nil, token)
	require.Equal(t, http.StatusBadRequest, noRoom.Code)
	decoded := testutil.DecodeResponse(t, noRoom)
	require.Equal(t, "EMAIL_SEND_FAILED", decoded.Error.Code)
	details := testutil.ErrorDetails(t, decoded)
	result, isMap := details["email_result"].(map[string]any)
	require.True(t, isMap)
	require.Equal(t, "NoRoomAssigned", result["reason"])

	missing := env.Request(http.MethodPost, "/api/students/does-not-exist/send-email", nil, token)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestStudentsHandler_SendBulkAndPendingEmails(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()
	uploadRoster(t, env, token, rosterHeader+
		"S1,Alice,9999999999,a@gmail.com,CSE,1,A,H1\n"+
		"S2,Bob,9999999998,b@gmail.com,ECE,2,,H2\n"+
		"S3,Carol,9999999997,c@gmail.com,CSE,1,B,H3\n", false)
	env.Mailer.FailFor["b@gmail.com"] = errors.New("550 mailbox unavailable")

	ids := []string{studentByRoll(t, env, "S1").ID, studentByRoll(t, env, "S2").ID}
	bulk := env.Request(http.MethodPost, "/api/students/send-bulk-emails", map[string]any{"student_ids": ids}, token)
	require.Equal(t, http.StatusOK, bulk.Code, bulk.Body.String())
	var bulkData bulkResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, bulk).Data, &bulkData)
	require.Equal(t, 2, bulkData.TotalStudents)
	require.Equal(t, 1, bulkData.EmailsSent)
	require.Equal(t, 1, bulkData.EmailFailures)

	unknown := env.Request(http.MethodPost, "/api/students/send-bulk-emails", map[string]any{"student_ids": []string{"nope"}}, token)
	require.Equal(t, http.StatusBadRequest, unknown.Code)

	empty := env.Request(http.MethodPost, "/api/students/send-bulk-emails", map[string]any{"student_ids": []string{}}, token)
	require.Equal(t, http.StatusBadRequest, empty.Code)

	delete(env.Mailer.FailFor, "b@gmail.com")
	pending := env.Request(http.MethodPost, "/api/students/send-pending-emails", nil, token)
	require.Equal(t, http.StatusOK, pending.Code, pending.Body.String())
	var pendingData bulkResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, pending).Data, &pendingData)
	require.Equal(t, 2, pendingData.TotalStudents)
	require.Equal(t, 2, pendingData.EmailsSent)

	again := env.Request(http.MethodPost, "/api/students/send-pending-emails", nil, token)
	var againData bulkResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, again).Data, &againData)
	require.Zero(t, againData.TotalStudents)
}

func TestStudentsHandler_StatisticsAndTestEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()
	uploadRoster(t, env, token, roster, true)

	resp := env.Request(http.MethodGet, "/api/students/statistics", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	var stats struct {
		TotalStudents     int64                     `json:"total_students"`
		StudentsWithGmail int64                     `json:"students_with_gmail"`
		EmailsSent        int64                     `json:"emails_sent"`
		EmailsPending     int64                     `json:"emails_pending"`
		Branches          map[string]map[string]any `json:"branches_statistics"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &stats)
	require.EqualValues(t, 3, stats.TotalStudents)
	require.EqualValues(t, 2, stats.StudentsWithGmail)
	require.EqualValues(t, 1, stats.EmailsSent)
	require.EqualValues(t, 2, stats.EmailsPending)
	require.Contains(t, stats.Branches, "CSE")
	require.NotContains(t, stats.Branches, "ME")

	before := len(env.Mailer.Sent())
	testEmail := env.Request(http.MethodPost, "/api/students/test-email", nil, token)
	require.Equal(t, http.StatusOK, testEmail.Code, testEmail.Body.String())
	sent := env.Mailer.Sent()
	require.Len(t, sent, before+1)
	require.Equal(t, []string{testutil.TestRecipient}, sent[before].To)

	env.Mailer.FailFor[testutil.TestRecipient] = errors.New("dial tcp: connection refused")
	failed := env.Request(http.MethodPost, "/api/students/test-email", nil, token)
	require.Equal(t, http.StatusInternalServerError, failed.Code)
	require.Equal(t, "EXTERNAL_SERVICE_ERROR", testutil.DecodeResponse(t, failed).Error.Code)
}

func TestHierarchyHandler(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AccessToken()
	uploadRoster(t, env, token, roster, false)

	branches := env.Request(http.MethodGet, "/api/branches", nil, token)
	require.Equal(t, http.StatusOK, branches.Code)
	var branchList []map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, branches).Data, &branchList)
	require.Len(t, branchList, len(models.Branches()))
	require.Equal(t, "CSE", branchList[0]["code"])
	require.EqualValues(t, 2, branchList[0]["count"])

	years := env.Request(http.MethodGet, "/api/branches/cse/years", nil, token)
	require.Equal(t, http.StatusOK, years.Code)
	var yearList []map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, years).Data, &yearList)
	require.Len(t, yearList, 4)
	require.Equal(t, "1st Year", yearList[0]["name"])
	require.EqualValues(t, 2, yearList[0]["count"])

	sections := env.Request(http.MethodGet, "/api/branches/CSE/years/1/sections", nil, token)
	var sectionList []map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, sections).Data, &sectionList)
	require.Len(t, sectionList, 2)

	class := env.Request(http.MethodGet, "/api/branches/CSE/years/1/students?section=b", nil, token)
	require.Equal(t, http.StatusOK, class.Code)
	var students []models.StudentView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, class).Data, &students)
	require.Len(t, students, 1)
	require.Equal(t, "S3", students[0].RollNumber)
	require.Equal(t, "1st Year", students[0].YearDisplay)
	require.Equal(t, "s3@mits.ac.in", students[0].InstitutionalEmail)

	unknown := env.Request(http.MethodGet, fmt.Sprintf("/api/branches/%s/years", "MBA"), nil, token)
	require.Equal(t, http.StatusNotFound, unknown.Code)
}
