package monitoring

import (
	"context"
	"errors"
	"time"
)

// CheckStatus encodes the outcome of a health check.
type CheckStatus string

const (
	StatusUp       CheckStatus = "up"
	StatusDown     CheckStatus = "down"
	StatusDegraded CheckStatus = "degraded"
)

// CheckResult captures a single dependency check outcome.
type CheckResult struct {
	Component string        `json:"component"`
	Status    CheckStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates check results. Degraded dependencies keep the service
// ready; a single down check does not.
type Report struct {
	Ready  bool          `json:"ready"`
	Status CheckStatus   `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Check encapsulates a single dependency check.
type Check struct {
	Name string
	Run  func(ctx context.Context) CheckResult
}

// NewCheck constructs a health check with the provided name and function.
func NewCheck(name string, fn func(ctx context.Context) CheckResult) Check {
	if fn == nil {
		fn = func(context.Context) CheckResult {
			return CheckResult{Status: StatusDown, Details: "check not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// Health runs the registered readiness checks.
type Health struct {
	checks []Check
}

// NewHealth constructs a Health with the supplied checks.
func NewHealth(checks ...Check) *Health {
	h := &Health{}
	for _, check := range checks {
		h.Register(check)
	}
	return h
}

// Register appends a check. Unnamed checks are ignored.
func (h *Health) Register(check Check) {
	if check.Name == "" {
		return
	}
	h.checks = append(h.checks, check)
}

// Evaluate executes every check in registration order.
func (h *Health) Evaluate(ctx context.Context) Report {
	report := Report{Ready: true, Status: StatusUp, Checks: make([]CheckResult, 0, len(h.checks))}

	for _, check := range h.checks {
		result := runCheck(ctx, check)
		report.Checks = append(report.Checks, result)

		switch result.Status {
		case StatusDown:
			report.Ready = false
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func runCheck(ctx context.Context, check Check) (result CheckResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			details := "panic recovered"
			switch v := rec.(type) {
			case string:
				details = v
			case error:
				details = v.Error()
			}
			result = CheckResult{Status: StatusDown, Details: details}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()

	return check.Run(ctx)
}

// ResultFromError converts an error into a CheckResult. Timeouts degrade
// rather than fail the check.
func ResultFromError(err error, duration time.Duration) CheckResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return CheckResult{Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return CheckResult{Status: status, Details: err.Error(), Duration: duration}
}
