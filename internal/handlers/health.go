package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examcell/smartboard/internal/monitoring"
	"github.com/examcell/smartboard/pkg/errors"
	"github.com/examcell/smartboard/pkg/response"
)

var errServiceUnavailable = errors.New("SERVICE_UNAVAILABLE", "Service is not ready", http.StatusServiceUnavailable)

// Health evaluates the readiness checks, answering 503 with the failing
// checks when any dependency is down.
func Health(health *monitoring.Health) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := health.Evaluate(requestContext(c))
		if !report.Ready {
			response.Error(c, errServiceUnavailable.WithDetails(report.Checks))
			return
		}
		response.Success(c, http.StatusOK, report)
	}
}
