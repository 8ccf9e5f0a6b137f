package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/interface/http/handlers"
	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps an application error to a status and error code.
// Internal details are logged, never returned.
func (s *Server) writeDomainError(c *gin.Context, op string, err error) {
	status, code := classify(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		s.logger.WithRequestID(handlers.RequestID(c)).Error("request failed",
			logger.Operation(op),
			logger.Err(err),
		)
		_ = c.Error(err)
		message = http.StatusText(status)
	}

	var de *shared.DomainError
	if status < http.StatusInternalServerError && errors.As(err, &de) {
		message = de.Message
	}

	handlers.WriteError(c, status, code, message, "")
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrSweepInProgress):
		return http.StatusConflict, "sweep_in_progress"
	case errors.Is(err, shared.ErrCohortQueryFailed):
		return http.StatusInternalServerError, "sweep_failed"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsConflict(err), shared.IsAlreadyExists(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeBindError reports a request body that failed to decode or validate.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
		}
		handlers.WriteError(c, http.StatusBadRequest, "validation_error", "invalid request body", strings.Join(details, "; "))
		return
	}
	handlers.WriteError(c, http.StatusBadRequest, "invalid_request", "malformed request body", "")
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var (
	registerOnce sync.Once
	registerErr  error
)

// registerValidators adds the custom tags used by request DTOs to gin's
// validator engine.
func registerValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("http: unexpected validator engine")
			return
		}
		registerErr = v.RegisterValidation("calendar_year", func(fl validator.FieldLevel) bool {
			return shared.CalendarYear(fl.Field().Int()).IsValid()
		})
	})
	return registerErr
}
