package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/examcell/smartboard/pkg/logger"
)

// Audit actions written by the services.
const (
	AuditActionStudentImport  = "student.import"
	AuditActionRoomImport     = "student.room_import"
	AuditActionStudentCreate  = "student.create"
	AuditActionStudentUpdate  = "student.update"
	AuditActionStudentDelete  = "student.delete"
	AuditActionEmailDispatch  = "student.email_dispatch"
	AuditActionUserRegister   = "user.register"
	AuditActionProfileUpdate  = "user.profile_update"
	AuditActionPasswordChange = "user.password_change"
	AuditActionPasswordForgot = "user.password_forgot"
	AuditActionPasswordReset  = "user.password_reset"
	AuditResultSuccess        = "success"
	AuditResultFailure        = "failure"
	AuditResultPartial        = "partial"
	auditResourceStudents     = "students"
	auditResourceUserPrefix   = "user:"
)

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
