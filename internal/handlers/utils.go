package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boatfuel/fueltracker/internal/services"
	"github.com/boatfuel/fueltracker/internal/session"
	"github.com/boatfuel/fueltracker/types"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextSessionKey contextKey = "session"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func withSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, contextSessionKey, sess)
}

func sessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(contextSessionKey).(*session.Session)
	return sess, ok && sess != nil
}

// currentUser returns the logged-in user of the request's session.
func currentUser(ctx context.Context) (*types.User, error) {
	sess, ok := sessionFromContext(ctx)
	if !ok {
		return nil, errors.New("missing session")
	}
	user, ok := sess.CurrentUser()
	if !ok {
		return nil, errors.New("not logged in")
	}
	return user, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger log.FieldLogger, err error) {
	var vErr *services.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: vErr.Error(), Field: vErr.Field})
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrResourceUnavailable):
		logger.WithError(err).Error("database unavailable")
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
	case errors.Is(err, services.ErrExportDisabled):
		writeError(w, http.StatusNotImplemented, "export is not configured")
	default:
		logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
