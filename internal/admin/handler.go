// Package admin exposes the operator-facing reporting API: subscriber and
// recording listings, inquiries, and manual credit grants.
package admin

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/streamvault/recordbot/internal/auth"
	"github.com/streamvault/recordbot/internal/inquiries"
	"github.com/streamvault/recordbot/internal/recordings"
	"github.com/streamvault/recordbot/internal/subscribers"
	"github.com/streamvault/recordbot/pkg/response"
)

// Handler serves the admin endpoints.
type Handler struct {
	password    string
	jwt         *auth.JWTService
	subscribers *subscribers.Repository
	recordings  *recordings.Repository
	inquiries   *inquiries.Repository
	log         *zap.Logger
}

// NewHandler wires the admin API.
func NewHandler(password string, jwt *auth.JWTService, subs *subscribers.Repository, recs *recordings.Repository, inqs *inquiries.Repository, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		password:    password,
		jwt:         jwt,
		subscribers: subs,
		recordings:  recs,
		inquiries:   inqs,
		log:         log,
	}
}

// LoginRequest is the body for POST /admin/login.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login exchanges the admin password for a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if h.password == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) != 1 {
		h.log.Warn("admin login rejected", zap.String("ip", c.ClientIP()))
		response.Unauthorized(c, "invalid credentials")
		return
	}
	token, err := h.jwt.GenerateAdmin()
	if err != nil {
		h.log.Error("generate admin token", zap.Error(err))
		response.Internal(c, "token generation failed")
		return
	}
	response.OK(c, gin.H{"token": token})
}

// ListSubscribers returns all subscriber accounts.
func (h *Handler) ListSubscribers(c *gin.Context) {
	subs, err := h.subscribers.List(c.Request.Context())
	if err != nil {
		h.log.Error("list subscribers", zap.Error(err))
		response.Internal(c, "listing failed")
		return
	}
	count, err := h.subscribers.Count(c.Request.Context())
	if err != nil {
		h.log.Error("count subscribers", zap.Error(err))
		response.Internal(c, "listing failed")
		return
	}
	response.OK(c, gin.H{"count": count, "subscribers": subs})
}

// ListRecordings returns the most recent recordings.
func (h *Handler) ListRecordings(c *gin.Context) {
	recs, err := h.recordings.ListRecent(c.Request.Context(), 100)
	if err != nil {
		h.log.Error("list recordings", zap.Error(err))
		response.Internal(c, "listing failed")
		return
	}
	response.OK(c, gin.H{"recordings": recs})
}

// ListInquiries returns the most recent support inquiries.
func (h *Handler) ListInquiries(c *gin.Context) {
	inqs, err := h.inquiries.ListRecent(c.Request.Context(), 100)
	if err != nil {
		h.log.Error("list inquiries", zap.Error(err))
		response.Internal(c, "listing failed")
		return
	}
	response.OK(c, gin.H{"inquiries": inqs})
}

// GrantCreditRequest is the body for POST /admin/credits.
type GrantCreditRequest struct {
	TelegramID int64   `json:"telegram_id" binding:"required"`
	Hours      float64 `json:"hours" binding:"required,gt=0"`
}

// GrantCredit adds recording credit to an account.
func (h *Handler) GrantCredit(c *gin.Context) {
	var req GrantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	sub, err := h.subscribers.GetByTelegramID(c.Request.Context(), req.TelegramID)
	if err != nil {
		h.log.Error("look up subscriber", zap.Error(err))
		response.Internal(c, "grant failed")
		return
	}
	if sub == nil {
		response.NotFound(c, "subscriber not found")
		return
	}
	if err := h.subscribers.AddCredit(c.Request.Context(), req.TelegramID, req.Hours); err != nil {
		h.log.Error("grant credit", zap.Error(err))
		response.Internal(c, "grant failed")
		return
	}
	h.log.Info("credit granted",
		zap.Int64("telegram_id", req.TelegramID),
		zap.Float64("hours", req.Hours))
	response.OK(c, gin.H{"telegram_id": req.TelegramID, "granted_hours": req.Hours})
}
