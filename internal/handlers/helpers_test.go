package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boatfuel/fueltracker/internal/services"
	"github.com/boatfuel/fueltracker/internal/session"
	"github.com/boatfuel/fueltracker/internal/stats"
	"github.com/boatfuel/fueltracker/internal/storage"
	"github.com/boatfuel/fueltracker/types"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]types.User
	pass  map[string]string
	err   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]types.User), pass: make(map[string]string)}
}

func (f *fakeUsers) Register(_ context.Context, email, displayName, password string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.User{}, f.err
	}
	if len(password) < 8 {
		return types.User{}, &services.ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if _, ok := f.users[email]; ok {
		return types.User{}, services.ErrConflict
	}
	u := types.User{ID: "user-" + email, Email: email, DisplayName: displayName, PasswordHash: "hash"}
	f.users[email] = u
	f.pass[email] = password
	return u, nil
}

func (f *fakeUsers) Authenticate(_ context.Context, email, password string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || f.pass[email] != password {
		return types.User{}, services.ErrInvalidCredentials
	}
	return u, nil
}

type fakeFuelUps struct {
	t          *testing.T
	mu         sync.Mutex
	nextID     int64
	items      map[int64]types.FuelUp
	exportKey  string
	exportBody string
	err        error
}

func newFakeFuelUps(t *testing.T) *fakeFuelUps {
	return &fakeFuelUps{t: t, items: make(map[int64]types.FuelUp)}
}

func (f *fakeFuelUps) CreateFuelUp(_ context.Context, user *types.User, in services.CreateFuelUpInput) (types.FuelUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.FuelUp{}, f.err
	}
	fu := types.FuelUp{UserID: user.ID, Date: types.NormalizeDate(in.Date), Location: in.Location}
	fu.SetGallons(in.Gallons)
	fu.SetPricePerGallon(in.PricePerGallon)
	if err := fu.Validate(); err != nil {
		var fieldErr *types.FieldError
		require.ErrorAs(f.t, err, &fieldErr)
		return types.FuelUp{}, &services.ValidationError{Field: fieldErr.Field, Reason: fieldErr.Reason}
	}
	f.nextID++
	fu.ID = f.nextID
	f.items[fu.ID] = fu
	return fu, nil
}

func (f *fakeFuelUps) ListFuelUpsByUser(_ context.Context, userID string) ([]types.FuelUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.FuelUp, 0)
	for _, fu := range f.items {
		if fu.UserID == userID {
			out = append(out, fu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (f *fakeFuelUps) GetFuelUp(_ context.Context, id int64) (types.FuelUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fu, ok := f.items[id]
	if !ok {
		return types.FuelUp{}, services.ErrNotFound
	}
	return fu, nil
}

func (f *fakeFuelUps) DeleteFuelUp(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeFuelUps) GetStatistics(ctx context.Context, userID string) (types.Statistics, error) {
	items, err := f.ListFuelUpsByUser(ctx, userID)
	if err != nil {
		return types.Statistics{}, err
	}
	return stats.Aggregate(items), nil
}

func (f *fakeFuelUps) ExportCSV(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.exportKey = "exports/" + userID + "/fuel-export-1700000000000.csv"
	f.exportBody = "id,date\n1,2024-05-01\n"
	return f.exportKey, nil
}

func (f *fakeFuelUps) OpenExport(_ context.Context, userID, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	key := "exports/" + userID + "/" + name
	if key != f.exportKey {
		return nil, storage.ObjectInfo{}, services.ErrNotFound
	}
	info := storage.ObjectInfo{Key: key, Size: int64(len(f.exportBody)), ContentType: "text/csv"}
	return io.NopCloser(strings.NewReader(f.exportBody)), info, nil
}

func (f *fakeFuelUps) DeleteExport(_ context.Context, userID, name string) error {
	if "exports/"+userID+"/"+name == f.exportKey {
		f.exportKey, f.exportBody = "", ""
	}
	return nil
}

type testAPI struct {
	router   http.Handler
	users    *fakeUsers
	fuelUps  *fakeFuelUps
	sessions *session.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger, _ := test.NewNullLogger()
	users := newFakeUsers()
	fuelUps := newFakeFuelUps(t)
	sessions := session.NewManager(session.NewMemoryStore(), time.Hour, session.WithLogger(logger))

	auth := NewAuthHandler(users, sessions, testSecret, time.Hour, logger)
	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, auth)
	})
	router.Route("/fuelups", func(r chi.Router) {
		FuelUpRouter(r, NewFuelUpHandler(fuelUps, logger), auth.RequireSession)
	})

	return &testAPI{router: router, users: users, fuelUps: fuelUps, sessions: sessions}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its bearer token.
func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{Email: email, Password: "longenough"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}
