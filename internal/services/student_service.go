package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/ingest"
	"github.com/examcell/smartboard/internal/models"
	apperrors "github.com/examcell/smartboard/pkg/errors"
)

var (
	// ErrStudentNotFound indicates the requested student does not exist.
	ErrStudentNotFound = apperrors.New("STUDENT_NOT_FOUND", "Student not found", http.StatusNotFound)
)

// StudentInput carries the raw attributes of a created or replaced student.
// The email_sent flag is owned by the dispatcher and is never taken from input.
type StudentInput struct {
	RollNumber     string
	Name           string
	PhoneNumber    string
	GmailAddress   string
	Branch         string
	Year           string
	Section        string
	ExamHallNumber string
}

// StudentFilters narrows student listings. Empty fields are ignored.
type StudentFilters struct {
	RollNumber string
	Branch     string
	Year       string
	Section    string
	HallNumber string
	Gmail      string
	EmailSent  *bool
}

// ListStudentsOptions controls pagination for student listing.
type ListStudentsOptions struct {
	Page     int
	PageSize int
	Filters  StudentFilters
}

// ImportSummary reports the outcome of a roster upsert.
type ImportSummary struct {
	Created  int              `json:"created_count"`
	Updated  int              `json:"updated_count"`
	Students []models.Student `json:"-"`
}

// RoomAssignmentSummary reports the outcome of a room allocation upload.
type RoomAssignmentSummary struct {
	Updated  int      `json:"updated_count"`
	NotFound []string `json:"not_found"`
}

// BranchSummary describes one branch in the hierarchy.
type BranchSummary struct {
	Code  models.Branch `json:"code"`
	Name  string        `json:"name"`
	Count int64         `json:"count"`
}

// YearSummary describes one year within a branch.
type YearSummary struct {
	Year  models.Year `json:"year"`
	Name  string      `json:"name"`
	Count int64       `json:"count"`
}

// SectionSummary describes one section within a branch year.
type SectionSummary struct {
	Section models.Section `json:"section"`
	Count   int64          `json:"count"`
}

// BranchStatistics is the per-branch part of Statistics.
type BranchStatistics struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	EmailsSent int64  `json:"emails_sent"`
}

// Statistics summarises the roster and notification progress.
type Statistics struct {
	TotalStudents     int64                              `json:"total_students"`
	StudentsWithGmail int64                              `json:"students_with_gmail"`
	EmailsSent        int64                              `json:"emails_sent"`
	EmailsPending     int64                              `json:"emails_pending"`
	Branches          map[models.Branch]BranchStatistics `json:"branches_statistics"`
}

// StudentService manages the student roster.
type StudentService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewStudentService constructs a StudentService.
func NewStudentService(db *gorm.DB, auditService *AuditService) (*StudentService, error) {
	if db == nil {
		return nil, errors.New("student service: db is required")
	}
	return &StudentService{db: db, auditService: auditService}, nil
}

// List returns students matching filters ordered by roll number.
func (s *StudentService) List(ctx context.Context, opts ListStudentsOptions) ([]models.Student, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := NormalisePage(opts.Page, opts.PageSize)

	query := applyStudentFilters(s.db.WithContext(ctx).Model(&models.Student{}), opts.Filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("student service: count students: %w", err)
	}

	var students []models.Student
	if err := query.
		Order("roll_number ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&students).Error; err != nil {
		return nil, 0, fmt.Errorf("student service: list students: %w", err)
	}
	return students, total, nil
}

func applyStudentFilters(query *gorm.DB, filters StudentFilters) *gorm.DB {
	if roll := strings.TrimSpace(filters.RollNumber); roll != "" {
		query = query.Where("UPPER(roll_number) LIKE ?", "%"+strings.ToUpper(roll)+"%")
	}
	if branch := strings.TrimSpace(filters.Branch); branch != "" {
		query = query.Where("branch = ?", strings.ToUpper(branch))
	}
	if year := strings.TrimSpace(filters.Year); year != "" {
		query = query.Where("year = ?", year)
	}
	if section := strings.TrimSpace(filters.Section); section != "" {
		query = query.Where("section = ?", strings.ToUpper(section))
	}
	if hall := strings.TrimSpace(filters.HallNumber); hall != "" {
		query = query.Where("exam_hall_number = ?", hall)
	}
	if gmail := strings.TrimSpace(filters.Gmail); gmail != "" {
		query = query.Where("LOWER(gmail_address) LIKE ?", "%"+strings.ToLower(gmail)+"%")
	}
	if filters.EmailSent != nil {
		query = query.Where("email_sent = ?", *filters.EmailSent)
	}
	return query
}

// Get loads a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	ctx = ensureContext(ctx)

	var student models.Student
	err := s.db.WithContext(ctx).First(&student, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("student service: get student: %w", err)
	}
	return &student, nil
}

// Create validates input and inserts a new student.
func (s *StudentService) Create(ctx context.Context, input StudentInput) (*models.Student, error) {
	ctx = ensureContext(ctx)

	record, err := normaliseStudentInput(input)
	if err != nil {
		return nil, err
	}

	student := record.Student()

	if err := s.db.WithContext(ctx).Create(&student).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, duplicateRollNumber()
		}
		return nil, fmt.Errorf("student service: create student: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   AuditActionStudentCreate,
		Resource: auditResourceStudents,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"roll_number": student.RollNumber},
	})
	return &student, nil
}

// Update replaces every attribute of an existing student.
func (s *StudentService) Update(ctx context.Context, id string, input StudentInput) (*models.Student, error) {
	ctx = ensureContext(ctx)

	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	record, err := normaliseStudentInput(input)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"roll_number":      record.RollNumber,
		"name":             record.Name,
		"phone_number":     record.PhoneNumber,
		"gmail_address":    record.GmailAddress,
		"branch":           record.Branch,
		"year":             record.Year,
		"section":          record.Section,
		"exam_hall_number": models.StringPtr(record.ExamHallNumber),
	}

	if err := s.db.WithContext(ctx).Model(student).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, duplicateRollNumber()
		}
		return nil, fmt.Errorf("student service: update student: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   AuditActionStudentUpdate,
		Resource: auditResourceStudents,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"id": student.ID, "roll_number": record.RollNumber},
	})
	return s.Get(ctx, student.ID)
}

// Delete removes a student.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.Student{}, "id = ?", strings.TrimSpace(id))
	if result.Error != nil {
		return fmt.Errorf("student service: delete student: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStudentNotFound
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   AuditActionStudentDelete,
		Resource: auditResourceStudents,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"id": id},
	})
	return nil
}

func normaliseStudentInput(input StudentInput) (ingest.StudentRecord, error) {
	record, fieldErrs := ingest.NormalizeStudent(ingest.StudentFields{
		RollNumber:     input.RollNumber,
		Name:           input.Name,
		PhoneNumber:    input.PhoneNumber,
		GmailAddress:   input.GmailAddress,
		Branch:         input.Branch,
		Year:           input.Year,
		Section:        input.Section,
		ExamHallNumber: input.ExamHallNumber,
	})
	if fieldErrs != nil {
		return record, apperrors.NewValidation(fieldErrs)
	}
	return record, nil
}

func duplicateRollNumber() *apperrors.AppError {
	message := "Student with this roll number already exists."
	return apperrors.NewConflict(message).WithDetails(map[string]string{"roll_number": message})
}

// UpsertStudents writes every record keyed on roll number in one
// transaction. Existing rows are overwritten except for email_sent, and an
// exam hall is only replaced when the record carries one.
func (s *StudentService) UpsertStudents(ctx context.Context, records []ingest.StudentRecord) (*ImportSummary, error) {
	ctx = ensureContext(ctx)
	summary := &ImportSummary{Students: make([]models.Student, 0, len(records))}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			var existing models.Student
			err := tx.Where("roll_number = ?", record.RollNumber).Take(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				student := record.Student()
				if err := tx.Create(&student).Error; err != nil {
					return fmt.Errorf("create %s: %w", record.RollNumber, err)
				}
				summary.Created++
				summary.Students = append(summary.Students, student)
			case err != nil:
				return fmt.Errorf("find %s: %w", record.RollNumber, err)
			default:
				updates := map[string]any{
					"name":          record.Name,
					"phone_number":  record.PhoneNumber,
					"gmail_address": record.GmailAddress,
					"branch":        record.Branch,
					"year":          record.Year,
					"section":       record.Section,
				}
				if record.ExamHallNumber != "" {
					updates["exam_hall_number"] = record.ExamHallNumber
				}
				if err := tx.Model(&existing).Updates(updates).Error; err != nil {
					return fmt.Errorf("update %s: %w", record.RollNumber, err)
				}
				if err := tx.Take(&existing, "id = ?", existing.ID).Error; err != nil {
					return fmt.Errorf("reload %s: %w", record.RollNumber, err)
				}
				summary.Updated++
				summary.Students = append(summary.Students, existing)
			}
		}
		return nil
	})
	if err != nil {
		recordAudit(s.auditService, ctx, AuditEntry{
			Action:   AuditActionStudentImport,
			Resource: auditResourceStudents,
			Result:   AuditResultFailure,
			Metadata: map[string]any{"rows": len(records), "error": err.Error()},
		})
		return nil, fmt.Errorf("student service: upsert students: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   AuditActionStudentImport,
		Resource: auditResourceStudents,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"created": summary.Created, "updated": summary.Updated},
	})
	return summary, nil
}

// AssignRooms sets exam_hall_number for every matching roll number in one
// transaction. Unknown roll numbers are reported, not treated as failures.
func (s *StudentService) AssignRooms(ctx context.Context, records []ingest.RoomRecord) (*RoomAssignmentSummary, error) {
	ctx = ensureContext(ctx)
	summary := &RoomAssignmentSummary{NotFound: []string{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			result := tx.Model(&models.Student{}).
				Where("roll_number = ?", record.RollNumber).
				Update("exam_hall_number", record.RoomNumber)
			if result.Error != nil {
				return fmt.Errorf("assign %s: %w", record.RollNumber, result.Error)
			}
			if result.RowsAffected == 0 {
				summary.NotFound = append(summary.NotFound, record.RollNumber)
				continue
			}
			summary.Updated++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("student service: assign rooms: %w", err)
	}

	result := AuditResultSuccess
	if len(summary.NotFound) > 0 {
		result = AuditResultPartial
	}
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   AuditActionRoomImport,
		Resource: auditResourceStudents,
		Result:   result,
		Metadata: map[string]any{"updated": summary.Updated, "not_found": summary.NotFound},
	})
	return summary, nil
}

// FindByIDs loads students in the order of ids. Every id must exist; the
// missing ones are reported in a validation error.
func (s *StudentService) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	ctx = ensureContext(ctx)

	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return nil, apperrors.NewFieldError("student_ids", "This field is required.")
	}

	var found []models.Student
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("student service: find students: %w", err)
	}

	byID := make(map[string]models.Student, len(found))
	for _, student := range found {
		byID[student.ID] = student
	}

	ordered := make([]models.Student, 0, len(ids))
	var missing []string
	for _, id := range ids {
		student, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, student)
	}
	if len(missing) > 0 {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("Students not found: %s", strings.Join(missing, ", "))).
			WithDetails(map[string]any{"missing_ids": missing})
	}
	return ordered, nil
}

// Pending returns students with an address and a hall who have not been emailed.
func (s *StudentService) Pending(ctx context.Context) ([]models.Student, error) {
	ctx = ensureContext(ctx)

	var students []models.Student
	if err := s.db.WithContext(ctx).
		Where("email_sent = ?", false).
		Where("gmail_address <> ''").
		Where("exam_hall_number IS NOT NULL AND exam_hall_number <> ''").
		Order("roll_number ASC").
		Find(&students).Error; err != nil {
		return nil, fmt.Errorf("student service: pending students: %w", err)
	}
	return students, nil
}

// Branches lists every branch with its student count.
func (s *StudentService) Branches(ctx context.Context) ([]BranchSummary, error) {
	ctx = ensureContext(ctx)

	counts, err := s.countBy(ctx, "branch", nil)
	if err != nil {
		return nil, err
	}

	out := make([]BranchSummary, 0, len(models.Branches()))
	for _, branch := range models.Branches() {
		out = append(out, BranchSummary{
			Code:  branch,
			Name:  branch.DisplayName(),
			Count: counts[string(branch)],
		})
	}
	return out, nil
}

// Years lists the years of a branch with their student counts.
func (s *StudentService) Years(ctx context.Context, rawBranch string) ([]YearSummary, error) {
	ctx = ensureContext(ctx)

	branch, err := parseBranchParam(rawBranch)
	if err != nil {
		return nil, err
	}

	counts, err := s.countBy(ctx, "year", map[string]any{"branch": branch})
	if err != nil {
		return nil, err
	}

	out := make([]YearSummary, 0, len(models.Years()))
	for _, year := range models.Years() {
		out = append(out, YearSummary{Year: year, Name: year.DisplayName(), Count: counts[string(year)]})
	}
	return out, nil
}

// Sections lists the sections present in a branch year.
func (s *StudentService) Sections(ctx context.Context, rawBranch, rawYear string) ([]SectionSummary, error) {
	ctx = ensureContext(ctx)

	branch, year, err := parseClassParams(rawBranch, rawYear)
	if err != nil {
		return nil, err
	}

	counts, err := s.countBy(ctx, "section", map[string]any{"branch": branch, "year": year})
	if err != nil {
		return nil, err
	}

	out := make([]SectionSummary, 0, len(counts))
	for _, section := range append([]models.Section{""}, models.Sections()...) {
		if count, ok := counts[string(section)]; ok {
			out = append(out, SectionSummary{Section: section, Count: count})
		}
	}
	return out, nil
}

// ClassStudents lists the students of a branch year, optionally one section.
func (s *StudentService) ClassStudents(ctx context.Context, rawBranch, rawYear, rawSection string) ([]models.Student, error) {
	ctx = ensureContext(ctx)

	branch, year, err := parseClassParams(rawBranch, rawYear)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("branch = ? AND year = ?", branch, year)
	if strings.TrimSpace(rawSection) != "" {
		section, ok := models.ParseSection(rawSection)
		if !ok {
			return nil, apperrors.NewFieldError("section", fmt.Sprintf("Invalid section %q.", rawSection))
		}
		query = query.Where("section = ?", section)
	}

	var students []models.Student
	if err := query.Order("roll_number ASC").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("student service: class students: %w", err)
	}
	return students, nil
}

// Statistics summarises the roster.
func (s *StudentService) Statistics(ctx context.Context) (*Statistics, error) {
	ctx = ensureContext(ctx)
	db := s.db.WithContext(ctx).Model(&models.Student{})

	stats := &Statistics{Branches: map[models.Branch]BranchStatistics{}}
	if err := db.Session(&gorm.Session{}).Count(&stats.TotalStudents).Error; err != nil {
		return nil, fmt.Errorf("student service: count students: %w", err)
	}
	if err := db.Session(&gorm.Session{}).Where("email_sent = ?", true).Count(&stats.EmailsSent).Error; err != nil {
		return nil, fmt.Errorf("student service: count sent: %w", err)
	}
	if err := db.Session(&gorm.Session{}).Where("gmail_address <> ''").Count(&stats.StudentsWithGmail).Error; err != nil {
		return nil, fmt.Errorf("student service: count gmail: %w", err)
	}
	stats.EmailsPending = stats.TotalStudents - stats.EmailsSent

	var rows []struct {
		Branch string
		Total  int64
		Sent   int64
	}
	if err := db.Session(&gorm.Session{}).
		Select("branch, COUNT(*) AS total, SUM(CASE WHEN email_sent THEN 1 ELSE 0 END) AS sent").
		Group("branch").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("student service: branch statistics: %w", err)
	}
	for _, row := range rows {
		branch := models.Branch(row.Branch)
		stats.Branches[branch] = BranchStatistics{
			Name:       branch.DisplayName(),
			Count:      row.Total,
			EmailsSent: row.Sent,
		}
	}
	return stats, nil
}

func (s *StudentService) countBy(ctx context.Context, column string, where map[string]any) (map[string]int64, error) {
	var rows []struct {
		GroupKey string
		Total    int64
	}
	query := s.db.WithContext(ctx).Model(&models.Student{})
	if len(where) > 0 {
		query = query.Where(where)
	}
	if err := query.
		Select(column + " AS group_key, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("student service: count by %s: %w", column, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.GroupKey] = row.Total
	}
	return counts, nil
}

func parseBranchParam(raw string) (models.Branch, error) {
	branch, ok := models.ParseBranch(raw)
	if !ok {
		return "", apperrors.ErrNotFound.WithDetails(map[string]string{"branch": fmt.Sprintf("Unknown branch %q.", raw)})
	}
	return branch, nil
}

func parseClassParams(rawBranch, rawYear string) (models.Branch, models.Year, error) {
	branch, err := parseBranchParam(rawBranch)
	if err != nil {
		return "", "", err
	}
	year, ok := models.ParseYear(rawYear)
	if !ok || strings.TrimSpace(rawYear) == "" {
		return "", "", apperrors.ErrNotFound.WithDetails(map[string]string{"year": fmt.Sprintf("Unknown year %q.", rawYear)})
	}
	return branch, year, nil
}
