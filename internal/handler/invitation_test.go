package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/andrepetsch/secret-library/internal/config"
	"github.com/andrepetsch/secret-library/internal/gate"
	"github.com/andrepetsch/secret-library/internal/mailer"
	"github.com/andrepetsch/secret-library/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testBaseURL = "http://localhost:8080"

func newInvitationRouter(t *testing.T, db *gorm.DB, user *models.User) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// SMTP left unconfigured; issuance must work without delivery
	m := mailer.New(config.EmailConfig{}, zerolog.Nop())
	h := NewInvitationHandler(gate.New(db, zerolog.Nop()), m, testBaseURL, 7, zerolog.Nop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("currentUser", user)
	})
	r.POST("/invitations", h.Create)
	r.GET("/invitations", h.List)
	return r
}

func TestCreateInvitationReturnsRetrievableLink(t *testing.T) {
	db := newTestDB(t)
	user := seedTestUser(t, db, "alice@x.com")
	r := newInvitationRouter(t, db, user)

	w, resp := doJSON(t, r, http.MethodPost, "/invitations", gin.H{"email": "newbie@x.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := resp["data"].(map[string]interface{})
	link := data["invite_link"].(string)
	assert.True(t, strings.HasPrefix(link, testBaseURL+"/invite/"), link)
	assert.Equal(t, false, data["email_sent"])

	inv := data["invitation"].(map[string]interface{})
	assert.Equal(t, "newbie@x.com", inv["email"])
}

func TestCreateInvitationForRegisteredEmailConflicts(t *testing.T) {
	db := newTestDB(t)
	user := seedTestUser(t, db, "alice@x.com")
	r := newInvitationRouter(t, db, user)

	w, resp := doJSON(t, r, http.MethodPost, "/invitations", gin.H{"email": "alice@x.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "user already exists", resp["message"])
}

func TestCreateInvitationRejectsBadExpiry(t *testing.T) {
	db := newTestDB(t)
	user := seedTestUser(t, db, "alice@x.com")
	r := newInvitationRouter(t, db, user)

	w, _ := doJSON(t, r, http.MethodPost, "/invitations", gin.H{"expires_in_days": 365})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListInvitationsShowsStatusAndLink(t *testing.T) {
	db := newTestDB(t)
	user := seedTestUser(t, db, "alice@x.com")
	r := newInvitationRouter(t, db, user)

	used := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&models.Invitation{
		Token:     "used-one",
		CreatedBy: user.ID,
		ExpiresAt: time.Now().AddDate(0, 0, 7),
		UsedAt:    &used,
	}).Error)
	require.NoError(t, db.Create(&models.Invitation{
		Token:     "pending-one",
		CreatedBy: user.ID,
		ExpiresAt: time.Now().AddDate(0, 0, 7),
	}).Error)

	w, resp := doJSON(t, r, http.MethodGet, "/invitations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 2)

	statuses := map[string]string{}
	for _, raw := range items {
		item := raw.(map[string]interface{})
		token := strings.TrimPrefix(item["invite_link"].(string), testBaseURL+"/invite/")
		statuses[token] = item["status"].(string)
	}
	assert.Equal(t, "used", statuses["used-one"])
	assert.Equal(t, "pending", statuses["pending-one"])
}
