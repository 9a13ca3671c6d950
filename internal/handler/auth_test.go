package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andrepetsch/secret-library/internal/config"
	"github.com/andrepetsch/secret-library/internal/gate"
	"github.com/andrepetsch/secret-library/internal/middleware"
	"github.com/andrepetsch/secret-library/internal/models"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubProvider fakes the identity provider's token and API endpoints.
func stubProvider(t *testing.T, email string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"stub-access-token","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":4242,"login":"octocat","name":"The Octocat","email":""}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"email":"` + email + `","primary":true,"verified":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAuthRouter(t *testing.T, db *gorm.DB, provider *httptest.Server) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AuthConfig{
		Secret:             testSecret,
		SessionTTLHours:    24,
		GithubClientID:     "client-id",
		GithubClientSecret: "client-secret",
		GithubAuthURL:      provider.URL + "/authorize",
		GithubTokenURL:     provider.URL + "/token",
		GithubAPIURL:       provider.URL,
	}
	h := NewAuthHandler(db, gate.New(db, zerolog.Nop()), cfg, "http://localhost:8080")
	invite := NewInviteLinkHandler(h.Gate, testSecret)

	r := gin.New()
	r.GET("/auth/signin", h.SignIn)
	r.GET("/auth/callback", h.Callback)
	r.GET("/auth/unauthorized", h.Unauthorized)
	r.GET("/invite/invalid", invite.Invalid)
	r.GET("/invite/:token", invite.Visit)
	return r
}

// callback drives /auth/callback with a matching state cookie plus any
// extra cookies (the handoff, usually).
func callback(r *gin.Engine, extra ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=s123&code=c456", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s123"})
	for _, c := range extra {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookieFrom(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

func TestCallbackAdmitsInvitedNewcomer(t *testing.T) {
	db := newTestDB(t)
	provider := stubProvider(t, "alice@x.com")
	r := newAuthRouter(t, db, provider)

	inv := &models.Invitation{
		Token:     "invite-token",
		CreatedBy: 1,
		ExpiresAt: time.Now().AddDate(0, 0, 7),
	}
	require.NoError(t, db.Create(inv).Error)

	handoff, err := util.SignHandoff(testSecret, inv.Token)
	require.NoError(t, err)

	w := callback(r, &http.Cookie{Name: handoffCookie, Value: handoff})

	assert.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/", w.Header().Get("Location"))
	require.NotNil(t, sessionCookieFrom(w.Result()), "session cookie must be issued")

	var user models.User
	require.NoError(t, db.Where("email = ?", "alice@x.com").First(&user).Error)
	assert.Equal(t, "The Octocat", user.DisplayName)
	assert.Equal(t, "4242", user.ProviderSubject)

	var got models.Invitation
	require.NoError(t, db.First(&got, inv.ID).Error)
	assert.NotNil(t, got.UsedAt)
}

func TestCallbackDeniesUninvitedNewcomer(t *testing.T) {
	db := newTestDB(t)
	provider := stubProvider(t, "stranger@x.com")
	r := newAuthRouter(t, db, provider)

	w := callback(r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/unauthorized", w.Header().Get("Location"))
	assert.Nil(t, sessionCookieFrom(w.Result()))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count, "denied sign-in must not create a user")
}

func TestCallbackAdmitsReturningMember(t *testing.T) {
	db := newTestDB(t)
	provider := stubProvider(t, "alice@x.com")
	r := newAuthRouter(t, db, provider)
	seedTestUser(t, db, "alice@x.com")

	w := callback(r)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	require.NotNil(t, sessionCookieFrom(w.Result()))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "no duplicate user for a returning member")
}

func TestCallbackSecondUseOfTokenIsDenied(t *testing.T) {
	db := newTestDB(t)
	r := newAuthRouter(t, db, stubProvider(t, "alice@x.com"))

	inv := &models.Invitation{
		Token:     "invite-token",
		CreatedBy: 1,
		ExpiresAt: time.Now().AddDate(0, 0, 7),
	}
	require.NoError(t, db.Create(inv).Error)

	handoff, err := util.SignHandoff(testSecret, inv.Token)
	require.NoError(t, err)

	w := callback(r, &http.Cookie{Name: handoffCookie, Value: handoff})
	require.Equal(t, "/", w.Header().Get("Location"))

	// bob replays the same invitation link
	bob := newAuthRouter(t, db, stubProvider(t, "bob@x.com"))
	w = callback(bob, &http.Cookie{Name: handoffCookie, Value: handoff})
	assert.Equal(t, "/auth/unauthorized", w.Header().Get("Location"))
	assert.Nil(t, sessionCookieFrom(w.Result()))
}

func TestCallbackGarbageHandoffCountsAsNone(t *testing.T) {
	db := newTestDB(t)
	r := newAuthRouter(t, db, stubProvider(t, "alice@x.com"))
	seedTestUser(t, db, "alice@x.com")

	// a mangled handoff never blocks a returning member
	w := callback(r, &http.Cookie{Name: handoffCookie, Value: "garbage"})
	assert.Equal(t, "/", w.Header().Get("Location"))
	require.NotNil(t, sessionCookieFrom(w.Result()))
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	db := newTestDB(t)
	r := newAuthRouter(t, db, stubProvider(t, "alice@x.com"))

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=wrong&code=c456", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s123"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignInRedirectsToProvider(t *testing.T) {
	db := newTestDB(t)
	provider := stubProvider(t, "alice@x.com")
	r := newAuthRouter(t, db, provider)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/signin", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), provider.URL+"/authorize")

	var hasState bool
	for _, c := range w.Result().Cookies() {
		if c.Name == stateCookie && c.Value != "" {
			hasState = true
		}
	}
	assert.True(t, hasState, "state cookie must be set")
}
