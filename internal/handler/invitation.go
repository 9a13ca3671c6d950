package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/andrepetsch/secret-library/internal/gate"
	"github.com/andrepetsch/secret-library/internal/mailer"
	"github.com/andrepetsch/secret-library/internal/middleware"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// InvitationHandler 负责邀请的签发和列表接口
type InvitationHandler struct {
	Gate       *gate.Gate
	Mailer     *mailer.Mailer
	BaseURL    string
	ExpireDays int
	Log        zerolog.Logger
}

func NewInvitationHandler(g *gate.Gate, m *mailer.Mailer, baseURL string, expireDays int, log zerolog.Logger) *InvitationHandler {
	if expireDays <= 0 {
		expireDays = 7
	}
	return &InvitationHandler{
		Gate:       g,
		Mailer:     m,
		BaseURL:    baseURL,
		ExpireDays: expireDays,
		Log:        log,
	}
}

type createInvitationReq struct {
	Email         string `json:"email" binding:"omitempty,email"`
	ExpiresInDays int    `json:"expires_in_days" binding:"omitempty,min=1,max=90"`
}

// Create issues an invitation and, when SMTP is configured and the
// invitation is email-scoped, mails the link. Delivery failure does not
// fail issuance; the link stays valid and retrievable.
func (h *InvitationHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	var req createInvitationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request")
		return
	}

	var email *string
	if trimmed := strings.TrimSpace(req.Email); trimmed != "" {
		email = &trimmed
	}

	expireDays := req.ExpiresInDays
	if expireDays <= 0 {
		expireDays = h.ExpireDays
	}

	inv, err := h.Gate.CreateInvitation(user.ID, email, expireDays)
	if err != nil {
		if errors.Is(err, gate.ErrEmailRegistered) {
			util.Error(c, http.StatusConflict, util.CodeConflict, "user already exists")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create invitation")
		return
	}

	inviteLink := h.BaseURL + "/invite/" + inv.Token

	emailSent := false
	if inv.Email != nil && h.Mailer.Validate() {
		if err := h.Mailer.SendInvitation(*inv.Email, inviteLink, inv.ExpiresAt); err != nil {
			h.Log.Warn().Err(err).Str("to", *inv.Email).Msg("invitation email failed, link still valid")
		} else {
			emailSent = true
		}
	}

	util.Success(c, util.Response{
		"invitation": gin.H{
			"id":         inv.ID,
			"email":      inv.Email,
			"expires_at": inv.ExpiresAt,
		},
		"invite_link": inviteLink,
		"email_sent":  emailSent,
	})
}

// List returns the invitations issued by the current member.
func (h *InvitationHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	list, err := h.Gate.ListInvitations(user.ID)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to list invitations")
		return
	}

	now := time.Now()
	items := make([]gin.H, 0, len(list))
	for i := range list {
		inv := &list[i]
		items = append(items, gin.H{
			"id":          inv.ID,
			"email":       inv.Email,
			"status":      inv.Status(now),
			"created_at":  inv.CreatedAt,
			"expires_at":  inv.ExpiresAt,
			"used_at":     inv.UsedAt,
			"invite_link": h.BaseURL + "/invite/" + inv.Token,
		})
	}

	util.Success(c, util.Response{
		"items": items,
	})
}
