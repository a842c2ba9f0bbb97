package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"resident-intake/internal/audit"
	"resident-intake/internal/auth"
	"resident-intake/internal/conversation"
	"resident-intake/internal/jobs"
	"resident-intake/internal/lock"
	"resident-intake/internal/rbac"
	"resident-intake/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Ingestor is the synchronous entry into the conversation engine.
type Ingestor interface {
	Handle(ctx context.Context, in conversation.Inbound) (conversation.Outcome, error)
}

type JobQueue interface {
	List(ctx context.Context, propertyID string, status jobs.Status, limit int) ([]jobs.Job, error)
	Get(ctx context.Context, propertyID, id string) (jobs.Job, error)
	Requeue(ctx context.Context, propertyID, id string) error
	EnqueueClose(ctx context.Context, propertyID, phone string) (jobs.Job, error)
}

type AuditTrail interface {
	LogAdminAction(ctx context.Context, propertyID, actorUserID, actorRole, phone, message string) error
	History(ctx context.Context, propertyID, phone string, limit int) ([]audit.Event, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Engine Ingestor
	Locker lock.Locker
	Jobs   JobQueue
	Audit  AuditTrail
}

// scopedProperty returns the property the caller may act on. A requested
// property other than the token's is refused unless the caller is super_admin.
func scopedProperty(c *gin.Context, requested string) (string, bool) {
	pid, err := auth.PropertyID(c.Request.Context())
	if err != nil || pid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "property_id required"})
		return "", false
	}
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == pid {
		return pid, true
	}
	if role, _ := auth.Role(c.Request.Context()); rbac.IsSuperAdmin(role) {
		return requested, true
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "property mismatch"})
	return "", false
}

// --- Identity ---

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	pid, _ := auth.PropertyID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "property_id": pid, "role": role})
}

// --- Messages ---

type messageRequest struct {
	PropertyID string `json:"property_id"`
	Phone      string `json:"phone_number"`
	Text       string `json:"text"`
	VoiceRef   string `json:"voice_ref"`
	PhotoRef   string `json:"photo_ref"`
}

type messageResponse struct {
	ReplyText string `json:"reply_text"`
	TicketID  string `json:"ticket_id,omitempty"`
	Ignored   bool   `json:"ignored"`
	Error     string `json:"error,omitempty"`
}

// PostMessage runs one message through the engine while holding the phone
// lock, the same lock the job workers take.
func (h Handlers) PostMessage(c *gin.Context) {
	if h.Engine == nil || h.Locker == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "engine not configured"})
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, messageResponse{Error: "invalid json"})
		return
	}
	propertyID, ok := scopedProperty(c, req.PropertyID)
	if !ok {
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, messageResponse{Error: "phone_number required"})
		return
	}

	in := conversation.Inbound{
		PropertyID: propertyID,
		Phone:      phone,
		Text:       req.Text,
		VoiceRef:   req.VoiceRef,
		PhotoRef:   req.PhotoRef,
	}

	var out conversation.Outcome
	err := lock.WithLock(c.Request.Context(), h.Locker, lock.PhoneKey(phone), func(ctx context.Context) error {
		var herr error
		out, herr = h.Engine.Handle(ctx, in)
		return herr
	})

	resp := messageResponse{ReplyText: out.Reply, TicketID: out.TicketID, Ignored: out.Ignored}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, lock.ErrLockHeld):
		resp.Error = "conversation busy, retry shortly"
		c.AbortWithStatusJSON(http.StatusConflict, resp)
	case errors.Is(err, conversation.ErrInvalidInput):
		resp.Error = "invalid input"
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
	case errors.Is(err, conversation.ErrNotApproved):
		resp.Error = "phone not approved for property"
		c.AbortWithStatusJSON(http.StatusForbidden, resp)
	default:
		logger.FromGin(c).Error("message handling failed",
			slog.String("phone", logger.MaskPhone(phone)),
			slog.Any("err", err),
		)
		resp.Error = "internal error"
		c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
	}
}

// --- Jobs ---

func (h Handlers) ListJobs(c *gin.Context) {
	if h.Jobs == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jobs not configured"})
		return
	}
	propertyID, ok := scopedProperty(c, c.Query("property_id"))
	if !ok {
		return
	}
	status := jobs.StatusFailed
	if raw := c.Query("status"); raw != "" {
		st, valid := jobs.ParseStatus(raw)
		if !valid {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		status = st
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	list, err := h.Jobs.List(c.Request.Context(), propertyID, status, limit)
	if err != nil {
		logger.FromGin(c).Error("job list failed", slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "job lookup failed"})
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

// RequeueJob moves a failed job back to pending.
// RBAC: manager, operator or super_admin.
func (h Handlers) RequeueJob(c *gin.Context) {
	if h.Jobs == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jobs not configured"})
		return
	}
	propertyID, ok := scopedProperty(c, c.Query("property_id"))
	if !ok {
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "job_id required"})
		return
	}

	ctx := c.Request.Context()
	job, err := h.Jobs.Get(ctx, propertyID, jobID)
	if err == nil {
		err = h.Jobs.Requeue(ctx, propertyID, jobID)
	}
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	case errors.Is(err, jobs.ErrNotFailed):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "only failed jobs can be requeued"})
		return
	default:
		logger.FromGin(c).Error("job requeue failed", slog.String("job_id", jobID), slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "requeue failed"})
		return
	}

	h.logAdmin(c, propertyID, job.Phone, fmt.Sprintf("requeued job %s", jobID))
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": jobs.StatusPending})
}

// --- Sessions ---

type closeSessionRequest struct {
	PropertyID string `json:"property_id"`
	Phone      string `json:"phone_number"`
}

// CloseSession queues an operator close behind any pending messages of the phone.
func (h Handlers) CloseSession(c *gin.Context) {
	if h.Jobs == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jobs not configured"})
		return
	}
	var req closeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	propertyID, ok := scopedProperty(c, req.PropertyID)
	if !ok {
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number required"})
		return
	}

	job, err := h.Jobs.EnqueueClose(c.Request.Context(), propertyID, phone)
	if err != nil {
		logger.FromGin(c).Error("close enqueue failed", slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "close failed"})
		return
	}

	h.logAdmin(c, propertyID, phone, "closed conversation")
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

// --- Audit ---

func (h Handlers) ResidentHistory(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	propertyID, ok := scopedProperty(c, c.Query("property_id"))
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	events, err := h.Audit.History(c.Request.Context(), propertyID, c.Param("phone"), limit)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidEvent) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
			return
		}
		logger.FromGin(c).Error("history lookup failed", slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// logAdmin is best-effort; a failed audit write never fails the request.
func (h Handlers) logAdmin(c *gin.Context, propertyID, phone, message string) {
	if h.Audit == nil {
		return
	}
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	if err := h.Audit.LogAdminAction(ctx, propertyID, uid, role, phone, message); err != nil {
		logger.FromGin(c).Warn("audit write failed", slog.Any("err", err))
	}
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// Convenience middleware bundles.

func RequirePropertyAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireProperty(), rbac.RequireAnyRole(roles...)}
}
