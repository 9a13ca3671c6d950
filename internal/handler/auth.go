package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/andrepetsch/secret-library/internal/config"
	"github.com/andrepetsch/secret-library/internal/gate"
	"github.com/andrepetsch/secret-library/internal/middleware"
	"github.com/andrepetsch/secret-library/internal/models"
	"github.com/andrepetsch/secret-library/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	stateCookie   = "sl_oauth_state"
	handoffCookie = "inviteToken"
)

// AuthHandler drives the sign-in flow against the external identity
// provider and feeds the result through the access gate.
type AuthHandler struct {
	DB       *gorm.DB
	Gate     *gate.Gate
	Cfg      config.AuthConfig
	OAuth    *oauth2.Config
	APIURL   string
	TokenTTL time.Duration
}

func NewAuthHandler(db *gorm.DB, g *gate.Gate, cfg config.AuthConfig, baseURL string) *AuthHandler {
	ttlHours := cfg.SessionTTLHours
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &AuthHandler{
		DB:   db,
		Gate: g,
		Cfg:  cfg,
		OAuth: &oauth2.Config{
			ClientID:     cfg.GithubClientID,
			ClientSecret: cfg.GithubClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.GithubAuthURL,
				TokenURL: cfg.GithubTokenURL,
			},
			RedirectURL: baseURL + "/auth/callback",
			Scopes:      []string{"read:user", "user:email"},
		},
		APIURL:   cfg.GithubAPIURL,
		TokenTTL: time.Duration(ttlHours) * time.Hour,
	}
}

// SignIn redirects to the identity provider's authorize page.
func (h *AuthHandler) SignIn(c *gin.Context) {
	state, err := util.RandomString(24)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to start sign-in")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, 600, "/", "", gin.Mode() == gin.ReleaseMode, true)
	c.Redirect(http.StatusFound, h.OAuth.AuthCodeURL(state))
}

// providerIdentity is what the provider hands back after authentication.
type providerIdentity struct {
	Subject string
	Email   string
	Name    string
}

// Callback completes the provider sign-in, asks the gate for an
// admission decision and, on admit, creates the identity (first visit)
// and issues the session cookie.
func (h *AuthHandler) Callback(c *gin.Context) {
	state, err := c.Cookie(stateCookie)
	if err != nil || state == "" || c.Query("state") != state {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid oauth state")
		return
	}

	code := c.Query("code")
	if code == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "missing oauth code")
		return
	}

	ident, err := h.fetchIdentity(c.Request.Context(), code)
	if err != nil {
		util.Error(c, http.StatusBadGateway, util.CodeServerErr, "identity provider error")
		return
	}

	// handoff cookie is read exactly once; anything invalid or expired
	// counts as no handoff at all
	handoffToken := ""
	if raw, err := c.Cookie(handoffCookie); err == nil && raw != "" {
		if tok, err := util.ParseHandoff(h.Cfg.Secret, raw); err == nil {
			handoffToken = tok
		}
	}

	var user models.User
	registered := false
	if ident.Email != "" {
		if err := h.DB.Where("email = ?", ident.Email).First(&user).Error; err == nil {
			registered = true
		} else if err != gorm.ErrRecordNotFound {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load user")
			return
		}
	}

	decision, err := h.Gate.Decide(gate.Candidate{Email: ident.Email, Registered: registered}, handoffToken)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "admission check failed")
		return
	}
	if !decision.Admitted {
		c.Redirect(http.StatusFound, "/auth/unauthorized")
		return
	}

	if !registered {
		user = models.User{
			DisplayName:     ident.Name,
			Provider:        "github",
			ProviderSubject: ident.Subject,
		}
		if ident.Email != "" {
			email := ident.Email
			user.Email = &email
		}
		if err := h.DB.Create(&user).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create user")
			return
		}
	}

	token, err := util.GenerateToken(h.Cfg.Secret, user.ID, h.TokenTTL)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to create session")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.TokenTTL.Seconds()), "/", "", gin.Mode() == gin.ReleaseMode, true)
	c.Redirect(http.StatusFound, "/")
}

// fetchIdentity exchanges the code and reads the user's profile and
// primary email from the provider API.
func (h *AuthHandler) fetchIdentity(ctx context.Context, code string) (*providerIdentity, error) {
	token, err := h.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	client := h.OAuth.Client(ctx, token)

	var profile struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(client, h.APIURL+"/user", &profile); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	email := profile.Email
	if email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		// public email may be hidden; ask for the verified primary one
		if err := getJSON(client, h.APIURL+"/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	return &providerIdentity{
		Subject: strconv.FormatInt(profile.ID, 10),
		Email:   email,
		Name:    name,
	}, nil
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Unauthorized is the deny surface the gate redirects to.
func (h *AuthHandler) Unauthorized(c *gin.Context) {
	c.String(http.StatusForbidden, "You need a valid invitation to join Secret Library.")
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", gin.Mode() == gin.ReleaseMode, true)
	util.Success(c, util.Response{
		"message": "signed out",
	})
}

// GetMe 返回当前登录用户信息（需要经过 AuthMiddleware）
func GetMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not signed in")
		return
	}

	util.Success(c, util.Response{
		"user": gin.H{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"created_at":   user.CreatedAt,
		},
	})
}
