package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/boatfuel/fueltracker/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndMe(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Email:       "skipper@example.com",
		DisplayName: "Skip",
		Password:    "longenough",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "skipper@example.com", resp.User.Email)
	assert.NotContains(t, rec.Body.String(), "hash")

	claims, err := parseToken(resp.Token, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.Subject)
	assert.NotEmpty(t, claims.ID)

	rec = api.do(t, http.MethodGet, "/auth/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, resp.User.ID, me.ID)
}

func TestRegister_Errors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{Email: "a@b.io", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"password"`)

	api.register(t, "a@b.io")
	rec = api.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{Email: "a@b.io", Password: "longenough"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	api.users.err = errors.New("boom")
	rec = api.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{Email: "c@d.io", Password: "longenough"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "a@b.io")

	rec := api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: "a@b.io", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: "a@b.io"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: "a@b.io", Password: "longenough"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = api.do(t, http.MethodGet, "/auth/me", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "a@b.io")

	rec := api.do(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSession_Rejects(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := issueToken("user-x", "no-such-session", []byte(testSecret), time.Hour)
	require.NoError(t, err)
	rec = api.do(t, http.MethodGet, "/auth/me", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongKey, err := issueToken("user-x", "s", []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	rec = api.do(t, http.MethodGet, "/auth/me", wrongKey, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSession_SubjectMustMatchSession(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "a@b.io")
	claims, err := parseToken(token, []byte(testSecret))
	require.NoError(t, err)

	other, err := issueToken("someone-else", claims.ID, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/auth/me", other, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		ok     bool
	}{
		{"", false},
		{"Bearer", false},
		{"Basic abc", false},
		{"Bearer   ", false},
		{"bearer abc", true},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		_, err := bearerToken(req)
		assert.Equal(t, tt.ok, err == nil, tt.header)
	}
}
