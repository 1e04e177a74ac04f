package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/examcell/smartboard/pkg/errors"
	"github.com/examcell/smartboard/pkg/response"
	appValidator "github.com/examcell/smartboard/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	return validate(c, dest)
}

// validate runs struct validation on an already bound value.
func validate(c *gin.Context, dest any) bool {
	if err := appValidator.ValidateStruct(dest); err != nil {
		var ve appValidator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			response.Error(c, appErrors.NewValidation(ve.Fields()))
			return false
		}
		response.Error(c, appErrors.NewBadRequest("invalid request payload"))
		return false
	}
	return true
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// parseBoolQuery returns nil when the parameter is absent or unparsable.
func parseBoolQuery(c *gin.Context, key string) *bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &parsed
}

// parseBoolForm reads multipart booleans such as "true", "1" or "on".
func parseBoolForm(c *gin.Context, key string) bool {
	value := strings.ToLower(strings.TrimSpace(c.PostForm(key)))
	switch value {
	case "on", "yes":
		return true
	}
	parsed, _ := strconv.ParseBool(value)
	return parsed
}
