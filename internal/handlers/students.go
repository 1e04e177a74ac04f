package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/examcell/smartboard/internal/ingest"
	"github.com/examcell/smartboard/internal/models"
	"github.com/examcell/smartboard/internal/notify"
	"github.com/examcell/smartboard/internal/services"
	apperrors "github.com/examcell/smartboard/pkg/errors"
	"github.com/examcell/smartboard/pkg/logger"
	"github.com/examcell/smartboard/pkg/response"
)

const defaultMaxUploadBytes int64 = 10 << 20

var errEmailSendFailed = apperrors.New("EMAIL_SEND_FAILED", "Email sending failed", http.StatusBadRequest)

// StudentsConfig tunes upload limits, the test email target and the domain
// used for derived campus mailboxes.
type StudentsConfig struct {
	MaxUploadBytes    int64
	TestRecipient     string
	InstitutionDomain string
}

// StudentsHandler exposes student records, roster uploads and exam hall emails.
type StudentsHandler struct {
	students   *services.StudentService
	dispatcher *notify.Dispatcher
	cfg        StudentsConfig
	log        *zap.Logger
}

// NewStudentsHandler constructs a StudentsHandler.
func NewStudentsHandler(students *services.StudentService, dispatcher *notify.Dispatcher, cfg StudentsConfig) *StudentsHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &StudentsHandler{
		students:   students,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        logger.WithModule("students"),
	}
}

type studentRequest struct {
	RollNumber     string `json:"roll_number"`
	Name           string `json:"name"`
	PhoneNumber    string `json:"phone_number"`
	GmailAddress   string `json:"gmail_address"`
	Branch         string `json:"branch"`
	Year           string `json:"year"`
	Section        string `json:"section"`
	ExamHallNumber string `json:"exam_hall_number"`
}

func (r studentRequest) input() services.StudentInput {
	return services.StudentInput{
		RollNumber:     r.RollNumber,
		Name:           r.Name,
		PhoneNumber:    r.PhoneNumber,
		GmailAddress:   r.GmailAddress,
		Branch:         r.Branch,
		Year:           r.Year,
		Section:        r.Section,
		ExamHallNumber: r.ExamHallNumber,
	}
}

// GET /api/students
func (h *StudentsHandler) List(c *gin.Context) {
	page, perPage := services.NormalisePage(parseIntQuery(c, "page", 1), parseIntQuery(c, "per_page", 0))

	students, total, err := h.students.List(requestContext(c), services.ListStudentsOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.StudentFilters{
			RollNumber: c.Query("roll_number"),
			Branch:     c.Query("branch"),
			Year:       c.Query("year"),
			Section:    c.Query("section"),
			HallNumber: c.Query("hall_number"),
			Gmail:      c.Query("gmail"),
			EmailSent:  parseBoolQuery(c, "email_sent"),
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, studentViews(students, h.cfg.InstitutionDomain), response.NewMeta(page, perPage, total))
}

// GET /api/students/:id
func (h *StudentsHandler) Get(c *gin.Context) {
	student, err := h.students.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, student.View(h.cfg.InstitutionDomain))
}

// POST /api/students
func (h *StudentsHandler) Create(c *gin.Context) {
	var req studentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	student, err := h.students.Create(requestContext(c), req.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, student.View(h.cfg.InstitutionDomain))
}

// PUT /api/students/:id
func (h *StudentsHandler) Update(c *gin.Context) {
	var req studentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	student, err := h.students.Update(requestContext(c), c.Param("id"), req.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, student.View(h.cfg.InstitutionDomain))
}

// DELETE /api/students/:id
func (h *StudentsHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/students/upload
//
// Accepts a roster as multipart field "file". Every row is validated before
// anything is written; with send_emails set the affected students are
// notified afterwards.
func (h *StudentsHandler) Upload(c *gin.Context) {
	filename, body, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer body.Close()

	records, err := ingest.ParseStudents(filename, body)
	if err != nil {
		response.Error(c, ingestError(err))
		return
	}

	ctx := requestContext(c)
	summary, err := h.students.UpsertStudents(ctx, records)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"message":         "File processed successfully",
		"created_count":   summary.Created,
		"updated_count":   summary.Updated,
		"total_processed": len(records),
		"emails_sent":     0,
		"email_failures":  0,
		"email_results":   []notify.Outcome{},
	}

	if parseBoolForm(c, "send_emails") {
		result := h.dispatch(ctx, summary.Students)
		payload["emails_sent"] = result.Sent
		payload["email_failures"] = result.Failed
		payload["email_results"] = result.Outcomes
	}

	response.Success(c, http.StatusCreated, payload)
}

// POST /api/students/upload-rooms
func (h *StudentsHandler) UploadRooms(c *gin.Context) {
	filename, body, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer body.Close()

	records, err := ingest.ParseRooms(filename, body)
	if err != nil {
		response.Error(c, ingestError(err))
		return
	}

	summary, err := h.students.AssignRooms(requestContext(c), records)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":         "Room allocation processed successfully",
		"updated_count":   summary.Updated,
		"not_found":       summary.NotFound,
		"total_processed": len(records),
	})
}

// POST /api/students/:id/send-email
func (h *StudentsHandler) SendEmail(c *gin.Context) {
	ctx := requestContext(c)
	student, err := h.students.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	result := h.dispatch(ctx, []models.Student{*student})
	if result.Total() == 0 {
		response.Error(c, apperrors.NewExternal("Email dispatch was interrupted", context.Cause(ctx)))
		return
	}
	outcome := result.Outcomes[0]

	if refreshed, err := h.students.Get(ctx, student.ID); err == nil {
		student = refreshed
	}

	if !outcome.Success {
		response.Error(c, errEmailSendFailed.WithDetails(gin.H{
			"student":      student.View(h.cfg.InstitutionDomain),
			"email_result": outcome,
		}))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":      "Email sending successful",
		"student":      student.View(h.cfg.InstitutionDomain),
		"email_result": outcome,
	})
}

type bulkEmailRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
}

// POST /api/students/send-bulk-emails
func (h *StudentsHandler) SendBulkEmails(c *gin.Context) {
	var req bulkEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	students, err := h.students.FindByIDs(ctx, req.StudentIDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respondBulk(c, "Bulk email sending completed", h.dispatch(ctx, students))
}

// POST /api/students/send-pending-emails
func (h *StudentsHandler) SendPendingEmails(c *gin.Context) {
	ctx := requestContext(c)
	students, err := h.students.Pending(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respondBulk(c, "Pending email sending completed", h.dispatch(ctx, students))
}

// GET /api/students/statistics
func (h *StudentsHandler) Statistics(c *gin.Context) {
	stats, err := h.students.Statistics(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// POST /api/students/test-email
func (h *StudentsHandler) TestEmail(c *gin.Context) {
	recipient := strings.TrimSpace(h.cfg.TestRecipient)
	if recipient == "" {
		response.Error(c, apperrors.NewBadRequest("No test recipient is configured"))
		return
	}

	if err := h.dispatcher.SendTest(requestContext(c), recipient); err != nil {
		h.log.Warn("test email failed", zap.Error(err))
		response.Error(c, apperrors.NewExternal("Email configuration test failed", err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":   "Test email sent successfully",
		"recipient": recipient,
	})
}

func (h *StudentsHandler) respondBulk(c *gin.Context, message string, result *notify.Result) {
	response.Success(c, http.StatusOK, gin.H{
		"message":        message,
		"total_students": result.Total(),
		"emails_sent":    result.Sent,
		"email_failures": result.Failed,
		"skipped":        result.Skipped,
		"aborted":        result.Aborted,
		"results":        result.Outcomes,
	})
}

// dispatch runs the notifier and keeps the partial result when the request
// is cancelled mid-run.
func (h *StudentsHandler) dispatch(ctx context.Context, students []models.Student) *notify.Result {
	result, err := h.dispatcher.Dispatch(ctx, students)
	if err != nil {
		h.log.Warn("dispatch ended early", zap.Int("processed", result.Total()), zap.Error(err))
	}
	return result
}

func studentViews(students []models.Student, domain string) []models.StudentView {
	views := make([]models.StudentView, len(students))
	for i, student := range students {
		views[i] = student.View(domain)
	}
	return views
}

func (h *StudentsHandler) openUpload(c *gin.Context) (string, multipart.File, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, apperrors.NewFieldError("file", "The uploaded file is too large."))
			return "", nil, false
		}
		response.Error(c, apperrors.NewFieldError("file", "No file was submitted."))
		return "", nil, false
	}

	if _, err := ingest.DetectFormat(header.Filename); err != nil {
		response.Error(c, ingestError(err))
		return "", nil, false
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return "", nil, false
	}
	return header.Filename, file, true
}
