package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collegeconnect/collegeconnect-hub/internal/application/command"
	"github.com/collegeconnect/collegeconnect-hub/internal/application/query"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/lifecycle"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/presence"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
	"github.com/collegeconnect/collegeconnect-hub/internal/interface/http/handlers"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports the result of all registered checks.
func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.HealthChecker == nil {
		handlers.WriteJSON(c, http.StatusOK, gin.H{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	handlers.WriteJSON(c, code, status)
}

// handleReady handles the readiness probe. A degraded service is ready.
func (s *Server) handleReady(c *gin.Context) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(c.Request.Context())
		if !status.Healthy {
			handlers.WriteError(c, http.StatusServiceUnavailable, "not_ready", status.Message, "")
			return
		}
	}
	handlers.WriteJSON(c, http.StatusOK, gin.H{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLE TRANSITION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// sweepResponse is the aggregation returned by POST /role-transition/upgrade.
type sweepResponse struct {
	RunID string `json:"runId"`
	Today string `json:"today"`
	lifecycle.Summary
	NotificationsFailed int   `json:"notificationsFailed"`
	DurationMs          int64 `json:"durationMs"`
}

// handleRunRoleSweep applies the role transition plan for ?date= (default: today).
func (s *Server) handleRunRoleSweep(c *gin.Context) {
	today, ok := s.dateParam(c)
	if !ok {
		return
	}

	res, err := s.deps.RunRoleSweepHandler.Handle(c.Request.Context(), command.RunRoleSweepCommand{
		Today:         today,
		TriggeredBy:   command.TriggerAdmin,
		CorrelationID: handlers.RequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "run_role_sweep", err)
		return
	}

	handlers.WriteJSON(c, http.StatusOK, sweepResponse{
		RunID:               res.RunID,
		Today:               timeutil.FormatDate(res.Today),
		Summary:             res.Summary,
		NotificationsFailed: res.NotificationsFailed,
		DurationMs:          res.Duration.Milliseconds(),
	})
}

// handlePreviewRoleSweep returns the dry-run plan as JSON, or as a workbook
// with ?format=xlsx.
func (s *Server) handlePreviewRoleSweep(c *gin.Context) {
	today, ok := s.dateParam(c)
	if !ok {
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "xlsx" {
		handlers.WriteError(c, http.StatusBadRequest, "validation_error", "format must be json or xlsx", "")
		return
	}

	res, err := s.deps.PreviewRoleSweepHandler.Handle(c.Request.Context(), query.PreviewRoleSweepQuery{Today: today})
	if err != nil {
		s.writeDomainError(c, "preview_role_sweep", err)
		return
	}

	if format == "json" {
		handlers.WriteJSONWithMeta(c, http.StatusOK, res, &handlers.ResponseMeta{TotalCount: len(res.Rows)})
		return
	}

	book, err := BuildPreviewWorkbook(res)
	if err != nil {
		s.writeDomainError(c, "preview_role_sweep_xlsx", err)
		return
	}
	defer book.Close()

	filename := fmt.Sprintf("role-sweep-preview-%s.xlsx", timeutil.FormatDate(res.Today))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", XLSXContentType)
	c.Status(http.StatusOK)
	if _, err := book.WriteTo(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

// dateParam reads ?date=YYYY-MM-DD in the configured location. On a bad value
// it writes a 400 and returns false.
func (s *Server) dateParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return time.Time{}, true
	}
	t, err := timeutil.ParseDate(raw, s.config.Location)
	if err != nil {
		handlers.WriteError(c, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD", "")
		return time.Time{}, false
	}
	return t, true
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC YEARS HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// academicYearsRequest is the body of PUT /users/:id/academic-years. A null or
// absent year clears it.
type academicYearsRequest struct {
	AdmissionYear  *int `json:"admissionYear" binding:"omitempty,calendar_year"`
	GraduationYear *int `json:"graduationYear" binding:"omitempty,calendar_year"`
}

// academicYearsResponse is the user's standing after the update.
type academicYearsResponse struct {
	UserID          string     `json:"userId"`
	Role            user.Role  `json:"role"`
	AdmissionYear   *int       `json:"admissionYear"`
	GraduationYear  *int       `json:"graduationYear"`
	CurrentYear     int        `json:"currentYear"`
	Graduated       bool       `json:"graduated"`
	RoleLastUpdated *time.Time `json:"roleLastUpdated,omitempty"`
	Updated         bool       `json:"updated"`
	RoleChanged     bool       `json:"roleChanged"`
	SkipReason      string     `json:"skipReason,omitempty"`
}

func (s *Server) handleUpdateAcademicYears(c *gin.Context) {
	var req academicYearsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	p, _ := handlers.PrincipalFrom(c)
	res, err := s.deps.UpdateAcademicYearsHandler.Handle(c.Request.Context(), command.UpdateAcademicYearsCommand{
		UserID:         c.Param("id"),
		AdmissionYear:  req.AdmissionYear,
		GraduationYear: req.GraduationYear,
		ActorID:        p.UserID,
		ActorIsAdmin:   p.IsAdmin(),
		CorrelationID:  handlers.RequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, "update_academic_years", err)
		return
	}

	u := res.User
	handlers.WriteJSON(c, http.StatusOK, academicYearsResponse{
		UserID:          u.ID,
		Role:            u.Role,
		AdmissionYear:   u.AdmissionYear,
		GraduationYear:  u.GraduationYear,
		CurrentYear:     u.CurrentYear,
		Graduated:       u.Graduated,
		RoleLastUpdated: u.RoleLastUpdated,
		Updated:         res.Decision.Updated,
		RoleChanged:     res.RoleChanged,
		SkipReason:      string(res.Decision.Reason),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// connectionRequest identifies one client connection of the caller.
type connectionRequest struct {
	ConnectionID string `json:"connection_id" binding:"required,max=128"`
}

// typingRequest marks the caller as typing in a room.
type typingRequest struct {
	RoomID string `json:"room_id" binding:"required,max=128"`
}

func (s *Server) connection(c *gin.Context) (presence.Connection, bool) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return presence.Connection{}, false
	}
	p, _ := handlers.PrincipalFrom(c)
	return presence.Connection{UserID: p.UserID, ConnectionID: req.ConnectionID}, true
}

func (s *Server) handlePresenceConnect(c *gin.Context) {
	conn, ok := s.connection(c)
	if !ok {
		return
	}
	change, err := s.deps.TrackPresenceHandler.Connect(c.Request.Context(), conn)
	if err != nil {
		s.writeDomainError(c, "presence_connect", err)
		return
	}
	handlers.WriteJSON(c, http.StatusOK, change)
}

func (s *Server) handlePresenceHeartbeat(c *gin.Context) {
	conn, ok := s.connection(c)
	if !ok {
		return
	}
	if err := s.deps.TrackPresenceHandler.Heartbeat(c.Request.Context(), conn); err != nil {
		s.writeDomainError(c, "presence_heartbeat", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePresenceDisconnect(c *gin.Context) {
	conn, ok := s.connection(c)
	if !ok {
		return
	}
	change, err := s.deps.TrackPresenceHandler.Disconnect(c.Request.Context(), conn)
	if err != nil {
		s.writeDomainError(c, "presence_disconnect", err)
		return
	}
	handlers.WriteJSON(c, http.StatusOK, change)
}

func (s *Server) handleGetOnline(c *gin.Context) {
	res, err := s.deps.GetOnlineNowHandler.Handle(c.Request.Context())
	if err != nil {
		s.writeDomainError(c, "get_online", err)
		return
	}
	handlers.WriteJSONWithMeta(c, http.StatusOK, res, &handlers.ResponseMeta{TotalCount: res.Count})
}

func (s *Server) handleGetPresenceStatus(c *gin.Context) {
	st, err := s.deps.GetOnlineNowHandler.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeDomainError(c, "get_presence_status", err)
		return
	}
	handlers.WriteJSON(c, http.StatusOK, st)
}

func (s *Server) handleStartTyping(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	p, _ := handlers.PrincipalFrom(c)
	if err := s.deps.TrackPresenceHandler.StartTyping(c.Request.Context(), req.RoomID, p.UserID); err != nil {
		s.writeDomainError(c, "start_typing", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetTyping(c *gin.Context) {
	res, err := s.deps.GetOnlineNowHandler.Typing(c.Request.Context(), c.Param("room"))
	if err != nil {
		s.writeDomainError(c, "get_typing", err)
		return
	}
	handlers.WriteJSON(c, http.StatusOK, res)
}
