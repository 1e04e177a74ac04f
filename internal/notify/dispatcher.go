package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/examcell/smartboard/internal/models"
	"github.com/examcell/smartboard/pkg/logger"
	"github.com/examcell/smartboard/pkg/mail"
	"github.com/examcell/smartboard/pkg/metrics"
)

// Reason classifies a student that was not sent an email.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoEmailAddress Reason = "NoEmailAddress"
	ReasonNoRoomAssigned Reason = "NoRoomAssigned"
	ReasonSendFailed     Reason = "SendFailed"
	ReasonMarkFailed     Reason = "MarkFailed"
)

// Outcome records what happened to a single student.
type Outcome struct {
	StudentID  string `json:"student_id"`
	RollNumber string `json:"roll_number"`
	Email      string `json:"email,omitempty"`
	Success    bool   `json:"success"`
	Reason     Reason `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Skipped reports whether the student was rejected before any send attempt.
func (o Outcome) Skipped() bool {
	return o.Reason == ReasonNoEmailAddress || o.Reason == ReasonNoRoomAssigned
}

// Result aggregates a dispatch run. Failed counts every student that was not
// sent, Skipped the subset rejected before a send attempt.
type Result struct {
	Outcomes []Outcome `json:"results"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Aborted  bool      `json:"aborted,omitempty"`
}

// Total returns the number of students processed.
func (r *Result) Total() int {
	return len(r.Outcomes)
}

func (r *Result) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch {
	case o.Success:
		r.Sent++
		metrics.EmailDispatch.WithLabelValues("sent").Inc()
	case o.Skipped():
		r.Skipped++
		r.Failed++
		metrics.EmailDispatch.WithLabelValues("skipped").Inc()
	default:
		r.Failed++
		metrics.EmailDispatch.WithLabelValues("failed").Inc()
	}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithPacer replaces the default batch pacer.
func WithPacer(p Pacer) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.pacer = p
		}
	}
}

// WithInstitution sets the sender identity used in templates.
func WithInstitution(inst Institution) Option {
	return func(d *Dispatcher) {
		if strings.TrimSpace(inst.ShortName) != "" {
			d.institution = inst
		}
	}
}

// WithSender sets the From address, overriding the transport default.
func WithSender(from string) Option {
	return func(d *Dispatcher) {
		d.from = strings.TrimSpace(from)
	}
}

// Dispatcher sends exam hall notices one student at a time.
type Dispatcher struct {
	db          *gorm.DB
	mailer      mail.Mailer
	pacer       Pacer
	institution Institution
	from        string
	log         *zap.Logger
}

// NewDispatcher constructs a dispatcher that marks delivered students in db.
func NewDispatcher(db *gorm.DB, mailer mail.Mailer, opts ...Option) (*Dispatcher, error) {
	if db == nil {
		return nil, errors.New("notify: db is required")
	}
	if mailer == nil {
		return nil, errors.New("notify: mailer is required")
	}

	d := &Dispatcher{
		db:          db,
		mailer:      mailer,
		pacer:       NewBatchPacer(DefaultBatchSize, DefaultBatchPause),
		institution: DefaultInstitution,
		log:         logger.WithModule("notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Institution returns the configured sender identity.
func (d *Dispatcher) Institution() Institution {
	return d.institution
}

// Dispatch sends a notice to every student in order. Per-student failures are
// recorded in the result; only context cancellation stops the run early, in
// which case the partial result is returned alongside the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, students []models.Student) (*Result, error) {
	result := &Result{Outcomes: make([]Outcome, 0, len(students))}
	attempts := 0

	for i := range students {
		student := &students[i]
		outcome := Outcome{
			StudentID:  student.ID,
			RollNumber: student.RollNumber,
			Email:      student.GmailAddress,
		}

		if strings.TrimSpace(student.GmailAddress) == "" {
			outcome.Reason = ReasonNoEmailAddress
			outcome.Error = "No email address"
			result.record(outcome)
			continue
		}
		if !student.HasHall() {
			outcome.Reason = ReasonNoRoomAssigned
			outcome.Error = "No room assigned"
			result.record(outcome)
			continue
		}

		if err := d.pacer.Wait(ctx, attempts); err != nil {
			result.Aborted = true
			d.log.Warn("dispatch aborted", zap.Int("processed", result.Total()), zap.Error(err))
			return result, err
		}
		attempts++

		if err := d.send(ctx, student); err != nil {
			outcome.Reason = ReasonSendFailed
			outcome.Error = err.Error()
			d.log.Warn("exam hall notice failed",
				zap.String("roll_number", student.RollNumber),
				zap.Error(err),
			)
			result.record(outcome)
			continue
		}

		if err := d.markSent(ctx, student.ID); err != nil {
			outcome.Reason = ReasonMarkFailed
			outcome.Error = err.Error()
			d.log.Error("mark email sent failed",
				zap.String("roll_number", student.RollNumber),
				zap.Error(err),
			)
			result.record(outcome)
			continue
		}
		student.EmailSent = true

		outcome.Success = true
		result.record(outcome)
	}

	d.log.Info("dispatch complete",
		zap.Int("total", result.Total()),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// SendTest delivers the configuration check message to recipient.
func (d *Dispatcher) SendTest(ctx context.Context, recipient string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return errors.New("notify: test recipient is required")
	}
	return d.mailer.Send(ctx, mail.Message{
		From:    d.from,
		To:      []string{recipient},
		Subject: TestSubject(d.institution),
		Body:    TestBody(),
	})
}

func (d *Dispatcher) send(ctx context.Context, student *models.Student) error {
	body, err := RenderHallNotice(d.institution, student)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, mail.Message{
		From:    d.from,
		To:      []string{student.GmailAddress},
		Subject: HallSubject(d.institution, student),
		Body:    body,
	})
}

func (d *Dispatcher) markSent(ctx context.Context, id string) error {
	// Each flag update commits on its own so delivered students stay marked
	// when a later send fails.
	err := d.db.WithContext(context.WithoutCancel(ctx)).
		Model(&models.Student{}).
		Where("id = ?", id).
		Update("email_sent", true).Error
	if err != nil {
		return fmt.Errorf("notify: mark sent: %w", err)
	}
	return nil
}
