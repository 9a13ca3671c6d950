package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/andrepetsch/secret-library/internal/gate"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InviteLinkHandler serves the invitation links mailed to invitees. It
// owns the handoff from "link clicked" to "provider sign-in".
type InviteLinkHandler struct {
	Gate      *gate.Gate
	JWTSecret string
}

func NewInviteLinkHandler(g *gate.Gate, jwtSecret string) *InviteLinkHandler {
	return &InviteLinkHandler{Gate: g, JWTSecret: jwtSecret}
}

// Visit validates the invitation behind the link and, when consumable,
// stashes the token in the short-lived handoff cookie before sending
// the visitor to sign-in. An unusable invitation gets no cookie, so an
// invalid link can never leak a token into the browser.
func (h *InviteLinkHandler) Visit(c *gin.Context) {
	token := c.Param("token")

	inv, err := h.Gate.FindByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Redirect(http.StatusFound, "/invite/invalid")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load invitation")
		return
	}

	// email is unknown before sign-in, so only used/expired disqualify here;
	// the gate re-checks the full predicate at sign-in completion
	if inv.IsUsed() || inv.IsExpired(time.Now()) {
		c.Redirect(http.StatusFound, "/invite/invalid")
		return
	}

	handoff, err := util.SignHandoff(h.JWTSecret, token)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to process invitation")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(handoffCookie, handoff, int(util.HandoffTTL.Seconds()), "/", "", gin.Mode() == gin.ReleaseMode, true)
	c.Redirect(http.StatusFound, "/auth/signin")
}

// Invalid is the landing page for used, expired or unknown invitations.
func (h *InviteLinkHandler) Invalid(c *gin.Context) {
	c.String(http.StatusGone, "This invitation link is invalid, already used or expired.")
}
