package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docsy-app/docsy/backend/go-services/internal/invitations"
	"github.com/docsy-app/docsy/backend/go-services/internal/models"
	"github.com/docsy-app/docsy/backend/go-services/pkg/metrics"
	"github.com/docsy-app/docsy/backend/go-services/pkg/middleware"
)

// InvitationHandler exposes the invitation lifecycle over HTTP.
type InvitationHandler struct {
	svc      *invitations.Service
	linkBase string
}

func NewInvitationHandler(svc *invitations.Service, linkBase string) *InvitationHandler {
	return &InvitationHandler{svc: svc, linkBase: strings.TrimRight(linkBase, "/")}
}

// RegisterInvitationRoutes wires the invitation routes. Token lookup is
// reachable from a bare emailed link; everything else requires auth.
func RegisterInvitationRoutes(r *gin.Engine, h *InvitationHandler, ver middleware.Verifier) {
	authed := middleware.AuthMiddleware(ver)

	r.POST("/api/documents/:id/invitations", authed, h.Create)
	r.GET("/api/documents/:id/invitations", authed, h.List)
	r.GET("/api/invitations/token/:token", middleware.OptionalAuthMiddleware(ver), h.LookupByToken)
	r.POST("/api/invitations/token/:token/validate", authed, h.Validate)
	r.POST("/api/invitations/token/:token/accept", authed, h.Accept)
	r.DELETE("/api/invitations/:id", authed, h.Revoke)
	r.POST("/api/invitations/:id/resend", authed, h.Resend)
	r.POST("/api/invitations/sweep", authed, h.Sweep)
}

func principalFrom(c *gin.Context) *models.User {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return nil
	}
	return models.PrincipalFromClaims(claims)
}

func (h *InvitationHandler) inviteURL(token string) string {
	return fmt.Sprintf("%s/invite/%s", h.linkBase, token)
}

func (h *InvitationHandler) Create(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal", "kind": "auth_error"})
		return
	}
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation_error"})
		return
	}

	inv, token, err := h.svc.Create(c.Request.Context(), invitations.CreateInput{
		DocID:       c.Param("id"),
		Email:       req.Email,
		Role:        req.Role,
		Notes:       req.Notes,
		InviterID:   principal.Sub,
		InviterName: principal.Name,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	metrics.InvitationsCreated.Inc()
	c.JSON(http.StatusCreated, gin.H{"invitation": inv, "inviteUrl": h.inviteURL(token)})
}

func (h *InvitationHandler) List(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal", "kind": "auth_error"})
		return
	}
	list, err := h.svc.List(c.Request.Context(), c.Param("id"), principal.Sub)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": list})
}

// LookupByToken returns minimal metadata for an invite link so the frontend
// can render the landing page before the visitor signs in.
func (h *InvitationHandler) LookupByToken(c *gin.Context) {
	inv, doc, err := h.svc.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil && inv == nil {
		writeServiceError(c, err)
		return
	}
	out := gin.H{
		"docId":     inv.DocID,
		"email":     inv.Email,
		"role":      inv.Role,
		"status":    inv.Status,
		"expiresAt": inv.ExpiresAt,
	}
	if doc != nil {
		out["docTitle"] = doc.Title
	}
	if err != nil {
		out["kind"] = kindOf(err)
	}
	c.JSON(http.StatusOK, out)
}

func (h *InvitationHandler) Validate(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal", "kind": "auth_error"})
		return
	}
	inv, err := h.svc.Validate(c.Request.Context(), c.Param("token"), principal.Email)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "docId": inv.DocID, "role": inv.Role})
}

func (h *InvitationHandler) Accept(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal", "kind": "auth_error"})
		return
	}
	inv, err := h.svc.Accept(c.Request.Context(), c.Param("token"), principal.Sub, principal.Email)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	metrics.InvitationsAccepted.Inc()
	c.JSON(http.StatusOK, gin.H{"invitation": inv, "documentId": inv.DocID})
}

func (h *InvitationHandler) Revoke(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal", "kind": "auth_error"})
		return
	}
	inv, err := h.svc.Revoke(c.Request.Context(), c.Param("id"), principal.Sub)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": inv})
}

func (h *InvitationHandler) Resend(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated principal", "kind": "auth_error"})
		return
	}
	inv, token, err := h.svc.Resend(c.Request.Context(), c.Param("id"), principal.Sub, principal.Name)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	metrics.InvitationsCreated.Inc()
	c.JSON(http.StatusOK, gin.H{"invitation": inv, "inviteUrl": h.inviteURL(token)})
}

func (h *InvitationHandler) Sweep(c *gin.Context) {
	n, err := h.svc.SweepExpired(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

// kindOf maps a service error to its stable kind string.
func kindOf(err error) string {
	var verr *invitations.ValidationError
	var rl *invitations.RateLimitedError
	switch {
	case errors.As(err, &verr):
		return "validation_error"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.Is(err, invitations.ErrNotFound):
		return "not_found"
	case errors.Is(err, invitations.ErrAccessDenied), errors.Is(err, invitations.ErrEmailMismatch):
		return "access_denied"
	case errors.Is(err, invitations.ErrDuplicatePending),
		errors.Is(err, invitations.ErrAlreadyCollaborator),
		errors.Is(err, invitations.ErrAlreadyAccepted):
		return "conflict"
	case errors.Is(err, invitations.ErrExpired):
		return "expired"
	case errors.Is(err, invitations.ErrAlreadyUsed):
		return "already_used"
	default:
		return "storage_error"
	}
}

func writeServiceError(c *gin.Context, err error) {
	kind := kindOf(err)
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error(), "kind": kind}

	switch kind {
	case "validation_error":
		status = http.StatusBadRequest
	case "rate_limited":
		status = http.StatusTooManyRequests
		var rl *invitations.RateLimitedError
		if errors.As(err, &rl) {
			secs := int(rl.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", secs))
			body["retryAfter"] = secs
		}
	case "not_found":
		status = http.StatusNotFound
	case "access_denied":
		status = http.StatusForbidden
	case "conflict":
		status = http.StatusConflict
	case "expired", "already_used":
		status = http.StatusGone
	}
	c.JSON(status, body)
}
