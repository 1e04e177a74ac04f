package monitoring

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const defaultDatabaseTimeout = 2 * time.Second

// StateReporter exposes a circuit breaker state ("closed", "half-open", "open").
type StateReporter interface {
	State() string
}

// DatabaseCheck pings db within timeout.
func DatabaseCheck(db *gorm.DB, timeout time.Duration) Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}
	return NewCheck("database", func(ctx context.Context) CheckResult {
		start := time.Now()
		if db == nil {
			return CheckResult{Status: StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return ResultFromError(err, time.Since(start))
		}

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return ResultFromError(sqlDB.PingContext(pingCtx), time.Since(start))
	})
}

// MailCheck reports the mail transport as degraded while its breaker is not
// closed. Email outages never make the service unready.
func MailCheck(breaker StateReporter) Check {
	return NewCheck("mail", func(context.Context) CheckResult {
		if breaker == nil {
			return CheckResult{Status: StatusUp, Details: "no circuit breaker"}
		}
		switch state := breaker.State(); state {
		case "closed":
			return CheckResult{Status: StatusUp}
		default:
			return CheckResult{Status: StatusDegraded, Details: "circuit " + state}
		}
	})
}
