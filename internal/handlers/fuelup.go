package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/boatfuel/fueltracker/internal/export"
	"github.com/boatfuel/fueltracker/internal/services"
	"github.com/boatfuel/fueltracker/internal/storage"
	"github.com/boatfuel/fueltracker/types"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// FuelUpService is the fuel-up use-case surface the routes need.
type FuelUpService interface {
	CreateFuelUp(ctx context.Context, user *types.User, in services.CreateFuelUpInput) (types.FuelUp, error)
	ListFuelUpsByUser(ctx context.Context, userID string) ([]types.FuelUp, error)
	GetFuelUp(ctx context.Context, id int64) (types.FuelUp, error)
	DeleteFuelUp(ctx context.Context, id int64) error
	GetStatistics(ctx context.Context, userID string) (types.Statistics, error)
	ExportCSV(ctx context.Context, userID string) (string, error)
	OpenExport(ctx context.Context, userID, name string) (io.ReadCloser, storage.ObjectInfo, error)
	DeleteExport(ctx context.Context, userID, name string) error
}

// FuelUpHandler provides HTTP handlers for fuel-ups.
type FuelUpHandler struct {
	fuelUps FuelUpService
	log     log.FieldLogger
}

func NewFuelUpHandler(fuelUps FuelUpService, logger log.FieldLogger) *FuelUpHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &FuelUpHandler{fuelUps: fuelUps, log: logger.WithField("component", "fuelups")}
}

// FuelUpRouter registers fuel-up routes. Every route requires a logged-in
// session.
func FuelUpRouter(r chi.Router, handler *FuelUpHandler, requireSession func(http.Handler) http.Handler) {
	r.Use(requireSession)
	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Get("/stats", handler.Statistics)
	r.Post("/export", handler.Export)
	r.Get("/export/{name}", handler.DownloadExport)
	r.Delete("/export/{name}", handler.DeleteExport)
	r.Delete("/{fuelUpID}", handler.Delete)
}

// CreateFuelUpRequest accepts amounts as JSON strings or numbers.
type CreateFuelUpRequest struct {
	Date           string              `json:"date"`
	Gallons        decimal.NullDecimal `json:"gallons"`
	PricePerGallon decimal.NullDecimal `json:"price_per_gallon"`
	EngineHours    decimal.NullDecimal `json:"engine_hours"`
	Location       string              `json:"location"`
	Notes          string              `json:"notes"`
}

type ExportResponse struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (h *FuelUpHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := h.fuelUps.ListFuelUpsByUser(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *FuelUpHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateFuelUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	in := services.CreateFuelUpInput{
		Gallons:        req.Gallons,
		PricePerGallon: req.PricePerGallon,
		EngineHours:    req.EngineHours,
		Location:       req.Location,
		Notes:          req.Notes,
	}
	if raw := strings.TrimSpace(req.Date); raw != "" {
		date, err := time.Parse(types.DateLayout, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "date must be YYYY-MM-DD", Field: "date"})
			return
		}
		in.Date = date
	}

	created, err := h.fuelUps.CreateFuelUp(r.Context(), user, in)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Delete removes one of the caller's fuel-ups. A missing id is already
// deleted; another user's id is reported as not found.
func (h *FuelUpHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseFuelUpID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fuel-up id")
		return
	}

	existing, err := h.fuelUps.GetFuelUp(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeServiceError(w, h.log, err)
		return
	}
	if existing.UserID != user.ID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := h.fuelUps.DeleteFuelUp(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FuelUpHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.fuelUps.GetStatistics(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *FuelUpHandler) Export(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key, err := h.fuelUps.ExportCSV(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Key: key, Name: path.Base(key)})
}

// DownloadExport streams one of the caller's CSV exports.
func (h *FuelUpHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	name := chi.URLParam(r, "name")
	body, info, err := h.fuelUps.OpenExport(r.Context(), user.ID, name)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = export.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.WithError(err).WithField("export", name).Warn("export download interrupted")
	}
}

// DeleteExport removes one of the caller's CSV exports.
func (h *FuelUpHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.fuelUps.DeleteExport(r.Context(), user.ID, chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFuelUpID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "fuelUpID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
