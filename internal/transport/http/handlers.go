// @title OpenTrusty API
// @version 1.0.0
// @description OpenID Connect Identity Provider
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name session_id

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/opentrusty/internal/audit"
	"github.com/opentrusty/opentrusty/internal/grantstore"
	"github.com/opentrusty/opentrusty/internal/id"
	"github.com/opentrusty/opentrusty/internal/identity"
	"github.com/opentrusty/opentrusty/internal/oauth2"
	"github.com/opentrusty/opentrusty/internal/observability/logger"
	"github.com/opentrusty/opentrusty/internal/oidc"
	"github.com/opentrusty/opentrusty/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies.
type Handler struct {
	identityService      *identity.Service
	sessionService       *session.Service
	engine               *oauth2.Engine
	clients              *oauth2.ClientRegistry
	grants               *grantstore.Store
	oidcService          *oidc.Service
	auditLogger          audit.Logger
	mailer               identity.Mailer
	emailVerificationTTL time.Duration
	sessionConfig        SessionConfig
	loginRedirectURL     string
}

// SessionConfig holds session cookie configuration.
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
}

// NewHandler creates a new HTTP handler. loginRedirectURL is where an
// unauthenticated /authorize request is sent to complete the ambient
// login detour (spec §9 design note); it must end up back at
// /authorize/resume with a continuation token once login succeeds.
func NewHandler(
	identityService *identity.Service,
	sessionService *session.Service,
	engine *oauth2.Engine,
	clients *oauth2.ClientRegistry,
	grants *grantstore.Store,
	oidcService *oidc.Service,
	auditLogger audit.Logger,
	mailer identity.Mailer,
	emailVerificationTTL time.Duration,
	sessionConfig SessionConfig,
	loginRedirectURL string,
) *Handler {
	return &Handler{
		identityService:      identityService,
		sessionService:       sessionService,
		engine:               engine,
		clients:              clients,
		grants:               grants,
		oidcService:          oidcService,
		auditLogger:          auditLogger,
		mailer:               mailer,
		emailVerificationTTL: emailVerificationTTL,
		sessionConfig:        sessionConfig,
		loginRedirectURL:     loginRedirectURL,
	}
}

// NewRouter creates a new HTTP router. Multi-tenancy and RBAC are
// Non-goals (spec §1): every route below is single-tenant, so there is
// no tenant-scoping middleware to mount.
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	// OIDC Discovery & JWKS (RFC 8414, RFC 7517)
	r.Get("/.well-known/openid-configuration", h.Discovery)
	r.Get("/jwks", h.JWKS)

	// Authorization Code + PKCE grant (spec §4.6-§4.9)
	r.Get("/authorize", h.Authorize)
	r.With(h.AuthMiddleware).Get("/authorize/resume", h.AuthorizeResume)
	r.Post("/token", h.Token)
	r.Get("/userinfo", h.UserInfo)
	r.Post("/logout", h.RevokeToken)

	// Ambient account surface: registration, login, profile, and
	// password management sit outside the protocol namespace so /logout
	// unambiguously means token revocation.
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/verify-email", h.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Post("/session-logout", h.Logout)
			r.Get("/me", h.GetCurrentUser)
		})
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Post("/change-password", h.ChangePassword)
	})

	// Client registration (spec §4.3). Any authenticated account may
	// register a client; there is no per-tenant or per-role gate to
	// apply since both are Non-goals.
	r.With(h.AuthMiddleware).Post("/clients", h.RegisterClient)

	return r
}

// HealthCheck returns the health status.
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "opentrusty",
	})
}

// RegisterRequest represents registration data.
type RegisterRequest struct {
	Email     string `json:"email" binding:"required" example:"user@example.com"`
	Password  string `json:"password" binding:"required" example:"secret123"`
	FirstName string `json:"first_name" example:"John"`
	LastName  string `json:"last_name" example:"Doe"`
	Username  string `json:"username" example:"john.doe"`
}

// Register handles user registration.
// @Summary Register a new user
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration Data"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile := identity.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
	}

	user, err := h.identityService.Register(r.Context(), req.Email, req.Password, profile)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to register user", logger.Error(err), logger.Email(req.Email))
		switch err {
		case identity.ErrUserAlreadyExists:
			respondError(w, http.StatusConflict, "user already exists")
		case identity.ErrInvalidEmail:
			respondError(w, http.StatusBadRequest, "invalid email address")
		case identity.ErrWeakPassword:
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	// spec §3 Email-verification token: opaque, single-use, 24h TTL by
	// default, mapping to the new user's id. Delivery is fire-and-forget
	// (spec §5) so registration never blocks on the mail transport.
	token := id.NewToken(32)
	if err := h.grants.PutEmailVerification(r.Context(), token, grantstore.EmailVerification{UserID: user.ID}, h.emailVerificationTTL); err != nil {
		slog.ErrorContext(r.Context(), "failed to store email verification token", logger.Error(err), logger.UserID(user.ID))
	} else {
		identity.SendAsync(h.mailer, "Verify your email address",
			"Use this token to verify your email: "+token, user.Email)
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// LoginRequest represents login credentials.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"user@example.com"`
	Password string `json:"password" binding:"required" example:"secret123"`
}

// Login handles user login.
// @Summary Login
// @Description Authenticate user and create a session
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessionService.Create(r.Context(), user.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// VerifyEmailRequest carries the token mailed to the user at registration.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyEmail confirms a user's email address using a single-use token
// (spec §3 User lifecycle; supplemented feature, SPEC_FULL §5).
// @Summary Verify Email
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body VerifyEmailRequest true "Verification Token"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /auth/verify-email [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.grants.GetEmailVerification(r.Context(), req.Token)
	if err != nil {
		respondError(w, http.StatusBadRequest, "verification token expired or unknown")
		return
	}

	if err := h.identityService.MarkEmailVerified(r.Context(), rec.UserID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to verify email")
		return
	}
	_ = h.grants.DeleteEmailVerification(r.Context(), req.Token)

	respondJSON(w, http.StatusOK, map[string]string{"message": "email verified"})
}

// Logout destroys the ambient login session (distinct from /logout's
// token revocation; mounted at /auth/session-logout).
// @Summary Session Logout
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]string
// @Router /auth/session-logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.getSessionFromCookie(r)
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	sess, err := h.sessionService.Get(r.Context(), sessionID)
	if err == nil {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:      audit.TypeLogout,
			ActorID:   sess.UserID,
			Resource:  audit.ResourceSession,
			IPAddress: getIPAddress(r),
			UserAgent: r.UserAgent(),
			Metadata:  map[string]any{audit.AttrSessionID: sess.ID},
		})
		_ = h.sessionService.Destroy(r.Context(), sessionID)
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

// GetCurrentUser returns the current authenticated user identity.
// @Summary Get Current User
// @Tags User
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /auth/me [get]
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"first_name":     user.FirstName,
		"last_name":      user.LastName,
		"username":       user.Username,
	})
}

// GetProfile returns the user profile.
// @Summary Get User Profile
// @Tags User
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /user/profile [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"first_name":          user.FirstName,
		"last_name":           user.LastName,
		"username":            user.Username,
		"profile_picture_url": user.ProfilePictureURL,
	})
}

// UpdateProfile updates the user profile.
// @Summary Update Profile
// @Tags User
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body identity.Profile true "New Profile"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /user/profile [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var profile identity.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.UpdateProfile(r.Context(), GetUserID(r.Context()), profile); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "profile updated successfully"})
}

// ChangePasswordRequest represents password change data.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword changes the user password.
// @Summary Change Password
// @Tags User
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body ChangePasswordRequest true "Password Change Data"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /user/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := GetUserID(r.Context())
	if err := h.identityService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		switch err {
		case identity.ErrInvalidCredentials:
			respondError(w, http.StatusUnauthorized, "invalid old password")
		case identity.ErrWeakPassword:
			respondError(w, http.StatusBadRequest, "new password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
}

// Helper functions

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   86400,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
