package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/boatfuel/fueltracker/internal/session"
	"github.com/boatfuel/fueltracker/internal/txn"
	"github.com/boatfuel/fueltracker/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const defaultTokenTTL = 24 * time.Hour

// UserService is the account use-case surface the auth routes need.
type UserService interface {
	Register(ctx context.Context, email, displayName, password string) (types.User, error)
	Authenticate(ctx context.Context, email, password string) (types.User, error)
}

// AuthHandler issues JWTs bound to server-side sessions.
type AuthHandler struct {
	users    UserService
	sessions *session.Manager
	secret   []byte
	tokenTTL time.Duration
	log      log.FieldLogger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users UserService, sessions *session.Manager, jwtSecret string, tokenTTL time.Duration, logger log.FieldLogger) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		log:      logger.WithField("component", "auth"),
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Group(func(r chi.Router) {
		r.Use(handler.RequireSession)
		r.Post("/logout", handler.Logout)
		r.Get("/me", handler.Me)
	})
}

// RequireSession resolves the bearer token to a logged-in session, puts it
// and its transaction hooks on the request context, and saves the session
// once the handler returns.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := parseToken(tokenString, h.secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		sess, err := h.sessions.Load(r.Context(), claims.ID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}
			h.log.WithError(err).Error("load session failed")
			writeError(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}
		if !sess.IsLoggedIn() || sess.User.ID != claims.Subject {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := withSession(r.Context(), sess)
		ctx = txn.WithHooks(ctx, sess.Hooks())
		next.ServeHTTP(w, r.WithContext(ctx))

		// Logout ends the session; nothing to write back.
		if !sess.IsLoggedIn() {
			return
		}
		if err := h.sessions.Save(r.Context(), sess); err != nil {
			h.log.WithError(err).WithField("session", sess.Token).Warn("save session failed")
		}
	})
}

// Register creates an account, logs it in and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	h.startSession(w, r, http.StatusCreated, user)
}

// Login verifies credentials, logs the user in and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	h.startSession(w, r, http.StatusOK, user)
}

// Logout ends the current session. The JWT stops working immediately.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sess.Logout()
	if err := h.sessions.End(r.Context(), sess.Token); err != nil {
		h.log.WithError(err).Error("end session failed")
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the user logged into the current session.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, user types.User) {
	sess, err := h.sessions.Start(r.Context())
	if err != nil {
		h.log.WithError(err).Error("start session failed")
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	sess.SetCurrentUser(&user)
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		h.log.WithError(err).Error("save session failed")
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}

	token, err := issueToken(user.ID, sess.Token, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	user.PasswordHash = ""
	writeJSON(w, status, AuthResponse{Token: token, User: user})
}

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// issueToken signs a JWT whose subject is the user and whose id is the
// session token.
func issueToken(userID, sessionToken string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        sessionToken,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseToken(tokenString string, secret []byte) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing subject")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return nil, errors.New("missing session id")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
