package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/examcell/smartboard/internal/database/testutil"
)

type fixedState string

func (s fixedState) State() string { return string(s) }

func TestHealthEvaluateAggregatesStatus(t *testing.T) {
	up := NewCheck("up", func(context.Context) CheckResult { return CheckResult{Status: StatusUp} })
	degraded := NewCheck("slow", func(context.Context) CheckResult { return CheckResult{Status: StatusDegraded} })
	down := NewCheck("broken", func(context.Context) CheckResult { panic(errors.New("boom")) })

	report := NewHealth(up, degraded).Evaluate(context.Background())
	require.True(t, report.Ready)
	require.Equal(t, StatusDegraded, report.Status)

	report = NewHealth(up, down, degraded).Evaluate(context.Background())
	require.False(t, report.Ready)
	require.Equal(t, StatusDown, report.Status)
	require.Len(t, report.Checks, 3)
	require.Equal(t, "broken", report.Checks[1].Component)
	require.Equal(t, "boom", report.Checks[1].Details)
}

func TestHealthIgnoresUnnamedChecks(t *testing.T) {
	h := NewHealth(NewCheck("", nil), NewCheck("stub", nil))
	report := h.Evaluate(context.Background())
	require.Len(t, report.Checks, 1)
	require.Equal(t, StatusDown, report.Checks[0].Status)
}

func TestResultFromError(t *testing.T) {
	require.Equal(t, StatusUp, ResultFromError(nil, time.Millisecond).Status)
	require.Equal(t, StatusDown, ResultFromError(errors.New("refused"), 0).Status)
	require.Equal(t, StatusDegraded, ResultFromError(context.DeadlineExceeded, -1).Status)
}

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	report := NewHealth(DatabaseCheck(db, 0)).Evaluate(context.Background())
	require.True(t, report.Ready)
	require.Equal(t, "database", report.Checks[0].Component)

	report = NewHealth(DatabaseCheck(nil, time.Second)).Evaluate(context.Background())
	require.False(t, report.Ready)
}

func TestMailCheck(t *testing.T) {
	require.Equal(t, StatusUp, NewHealth(MailCheck(fixedState("closed"))).Evaluate(context.Background()).Status)
	require.Equal(t, StatusUp, NewHealth(MailCheck(nil)).Evaluate(context.Background()).Status)

	report := NewHealth(MailCheck(fixedState("open"))).Evaluate(context.Background())
	require.True(t, report.Ready)
	require.Equal(t, StatusDegraded, report.Status)
	require.Equal(t, "circuit open", report.Checks[0].Details)
}
