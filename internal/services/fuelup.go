package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/boatfuel/fueltracker/internal/export"
	"github.com/boatfuel/fueltracker/internal/stats"
	"github.com/boatfuel/fueltracker/internal/storage"
	"github.com/boatfuel/fueltracker/internal/txn"
	"github.com/boatfuel/fueltracker/types"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// FuelUpRepository defines persistence operations for fuel-ups.
type FuelUpRepository interface {
	Create(ctx context.Context, f types.FuelUp) (types.FuelUp, error)
	Get(ctx context.Context, id int64) (types.FuelUp, error)
	ListByUser(ctx context.Context, userID string) ([]types.FuelUp, error)
	Delete(ctx context.Context, id int64) error
}

// TxRunner runs repository work, optionally inside a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx txn.DBTX) error, extra ...txn.Hooks) error
	Run(ctx context.Context, fn func(ctx context.Context, db txn.DBTX) error) error
}

// FuelUpEvents is notified once a change has been committed.
type FuelUpEvents interface {
	FuelUpCreated(ctx context.Context, f types.FuelUp) error
	FuelUpDeleted(ctx context.Context, f types.FuelUp) error
}

// ObjectStore holds exported files.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// FuelUpRecorder counts fuel-up outcomes.
type FuelUpRecorder interface {
	FuelUpCreated()
	FuelUpDeleted()
	FuelUpFailed(op string)
}

// CreateFuelUpInput carries the caller-supplied fields of a new fuel-up.
// Gallons and PricePerGallon are required.
type CreateFuelUpInput struct {
	Date           time.Time
	Gallons        decimal.NullDecimal
	PricePerGallon decimal.NullDecimal
	EngineHours    decimal.NullDecimal
	Location       string
	Notes          string
}

// FuelUpService encapsulates fuel-up use-cases.
type FuelUpService struct {
	runner   TxRunner
	repo     func(db txn.DBTX) FuelUpRepository
	events   FuelUpEvents
	exports  ObjectStore
	recorder FuelUpRecorder
	log      log.FieldLogger
	now      func() time.Time
}

// FuelUpOption configures optional collaborators.
type FuelUpOption func(*FuelUpService)

func WithFuelUpEvents(events FuelUpEvents) FuelUpOption {
	return func(s *FuelUpService) { s.events = events }
}

func WithExportStore(store ObjectStore) FuelUpOption {
	return func(s *FuelUpService) { s.exports = store }
}

func WithFuelUpRecorder(recorder FuelUpRecorder) FuelUpOption {
	return func(s *FuelUpService) { s.recorder = recorder }
}

func WithFuelUpLogger(logger log.FieldLogger) FuelUpOption {
	return func(s *FuelUpService) { s.log = logger }
}

func WithClock(now func() time.Time) FuelUpOption {
	return func(s *FuelUpService) { s.now = now }
}

func NewFuelUpService(runner TxRunner, repo func(db txn.DBTX) FuelUpRepository, opts ...FuelUpOption) *FuelUpService {
	s := &FuelUpService{
		runner: runner,
		repo:   repo,
		log:    log.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "fuelups")
	return s
}

// CreateFuelUp validates and stores a new fuel-up owned by user. The total
// cost is derived from gallons and price.
func (s *FuelUpService) CreateFuelUp(ctx context.Context, user *types.User, in CreateFuelUpInput) (types.FuelUp, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return types.FuelUp{}, &ValidationError{Field: "user", Reason: "is required"}
	}

	f := types.FuelUp{
		UserID:      user.ID,
		Date:        types.NormalizeDate(in.Date),
		EngineHours: in.EngineHours,
		Location:    strings.TrimSpace(in.Location),
		Notes:       strings.TrimSpace(in.Notes),
	}
	f.SetGallons(in.Gallons)
	f.SetPricePerGallon(in.PricePerGallon)

	if err := f.Validate(); err != nil {
		var fieldErr *types.FieldError
		if errors.As(err, &fieldErr) {
			return types.FuelUp{}, &ValidationError{Field: fieldErr.Field, Reason: fieldErr.Reason}
		}
		return types.FuelUp{}, &ValidationError{Reason: err.Error()}
	}

	var created types.FuelUp
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx txn.DBTX) error {
		var err error
		created, err = s.repo(tx).Create(ctx, f)
		return err
	}, txn.Hooks{
		AfterCommit: func(ctx context.Context, committed bool) {
			if !committed {
				return
			}
			s.notify(ctx, "created", created, s.eventCreated)
		},
	})
	if err != nil {
		s.failed("create")
		return types.FuelUp{}, storageError("create fuel-up", err)
	}
	if s.recorder != nil {
		s.recorder.FuelUpCreated()
	}

	s.log.WithFields(log.Fields{
		"fuel_up_id": created.ID,
		"user_id":    created.UserID,
	}).Debug("fuel-up created")
	return created, nil
}

// ListFuelUpsByUser returns the user's fuel-ups, newest first. The result is
// empty, not nil, when the user has none.
func (s *FuelUpService) ListFuelUpsByUser(ctx context.Context, userID string) ([]types.FuelUp, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "is required"}
	}

	var items []types.FuelUp
	err := s.runner.Run(ctx, func(ctx context.Context, db txn.DBTX) error {
		var err error
		items, err = s.repo(db).ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		s.failed("list")
		return nil, storageError("list fuel-ups", err)
	}
	if items == nil {
		items = []types.FuelUp{}
	}
	return items, nil
}

// GetFuelUp returns a single fuel-up or ErrNotFound.
func (s *FuelUpService) GetFuelUp(ctx context.Context, id int64) (types.FuelUp, error) {
	var f types.FuelUp
	err := s.runner.Run(ctx, func(ctx context.Context, db txn.DBTX) error {
		var err error
		f, err = s.repo(db).Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.FuelUp{}, ErrNotFound
		}
		return types.FuelUp{}, storageError("get fuel-up", err)
	}
	return f, nil
}

// DeleteFuelUp removes a fuel-up. Deleting a missing id succeeds.
func (s *FuelUpService) DeleteFuelUp(ctx context.Context, id int64) error {
	var (
		removed types.FuelUp
		found   bool
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx txn.DBTX) error {
		repo := s.repo(tx)
		f, err := repo.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		removed, found = f, true
		return nil
	}, txn.Hooks{
		AfterCommit: func(ctx context.Context, committed bool) {
			if !committed || !found {
				return
			}
			s.notify(ctx, "deleted", removed, s.eventDeleted)
		},
	})
	if err != nil {
		s.failed("delete")
		return storageError("delete fuel-up", err)
	}
	if found && s.recorder != nil {
		s.recorder.FuelUpDeleted()
	}
	return nil
}

// GetStatistics summarises the user's fuel-ups.
func (s *FuelUpService) GetStatistics(ctx context.Context, userID string) (types.Statistics, error) {
	items, err := s.ListFuelUpsByUser(ctx, userID)
	if err != nil {
		return types.Statistics{}, err
	}
	return stats.Aggregate(items), nil
}

// ExportCSV uploads the user's fuel-ups as CSV and returns the object key.
func (s *FuelUpService) ExportCSV(ctx context.Context, userID string) (string, error) {
	if s.exports == nil {
		return "", ErrExportDisabled
	}
	items, err := s.ListFuelUpsByUser(ctx, userID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, items); err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}

	key := exportKey(userID, export.FileName(s.now().UnixMilli()))
	if err := s.exports.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), export.ContentType); err != nil {
		s.failed("export")
		return "", fmt.Errorf("upload export: %w", err)
	}

	s.log.WithFields(log.Fields{
		"user_id": userID,
		"key":     key,
		"rows":    len(items),
	}).Info("fuel-up export written")
	return key, nil
}

// OpenExport returns a reader over one of the user's exports. The caller
// closes it.
func (s *FuelUpService) OpenExport(ctx context.Context, userID, name string) (io.ReadCloser, storage.ObjectInfo, error) {
	key, err := s.exportObject(userID, name)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	info, err := s.exports.Stat(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, exportError("stat export", err)
	}
	body, err := s.exports.Get(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, exportError("read export", err)
	}
	return body, info, nil
}

// DeleteExport removes one of the user's exports. Deleting a missing export
// succeeds.
func (s *FuelUpService) DeleteExport(ctx context.Context, userID, name string) error {
	key, err := s.exportObject(userID, name)
	if err != nil {
		return err
	}
	if err := s.exports.Delete(ctx, key); err != nil {
		return exportError("delete export", err)
	}
	s.log.WithFields(log.Fields{"user_id": userID, "key": key}).Info("fuel-up export removed")
	return nil
}

func (s *FuelUpService) exportObject(userID, name string) (string, error) {
	if s.exports == nil {
		return "", ErrExportDisabled
	}
	if strings.TrimSpace(userID) == "" {
		return "", &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if !export.IsFileName(name) {
		return "", &ValidationError{Field: "name", Reason: "is not an export file name"}
	}
	return exportKey(userID, name), nil
}

// exportKey scopes export objects under the owning user.
func exportKey(userID, name string) string {
	return fmt.Sprintf("exports/%s/%s", userID, name)
}

func exportError(op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *FuelUpService) eventCreated(ctx context.Context, f types.FuelUp) error {
	return s.events.FuelUpCreated(ctx, f)
}

func (s *FuelUpService) eventDeleted(ctx context.Context, f types.FuelUp) error {
	return s.events.FuelUpDeleted(ctx, f)
}

// notify publishes after commit. Failures are logged; the change is
// already durable.
func (s *FuelUpService) notify(ctx context.Context, kind string, f types.FuelUp, publish func(context.Context, types.FuelUp) error) {
	if s.events == nil {
		return
	}
	if err := publish(ctx, f); err != nil {
		s.log.WithError(err).WithFields(log.Fields{
			"event":      kind,
			"fuel_up_id": f.ID,
		}).Warn("failed to publish fuel-up event")
	}
}

func (s *FuelUpService) failed(op string) {
	if s.recorder != nil {
		s.recorder.FuelUpFailed(op)
	}
}
