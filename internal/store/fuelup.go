package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boatfuel/fueltracker/internal/txn"
	"github.com/boatfuel/fueltracker/types"
	"github.com/shopspring/decimal"
)

const fuelUpColumns = `id, user_id, fuel_date, gallons, price_per_gallon, engine_hours, location, notes, created_at`

// FuelUpRepository handles persistence for fuel-ups.
type FuelUpRepository struct {
	db txn.DBTX
}

func NewFuelUpRepository(db txn.DBTX) *FuelUpRepository {
	return &FuelUpRepository{db: db}
}

func (r *FuelUpRepository) Create(ctx context.Context, f types.FuelUp) (types.FuelUp, error) {
	const query = `
		INSERT INTO fuel_ups (user_id, fuel_date, gallons, price_per_gallon, total_cost, engine_hours, location, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		f.UserID,
		f.Date,
		f.Gallons(),
		f.PricePerGallon(),
		f.TotalCost(),
		f.EngineHours,
		nullString(f.Location),
		nullString(f.Notes),
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return types.FuelUp{}, fmt.Errorf("insert fuel-up: %w", err)
	}
	return f, nil
}

func (r *FuelUpRepository) Get(ctx context.Context, id int64) (types.FuelUp, error) {
	query := `SELECT ` + fuelUpColumns + ` FROM fuel_ups WHERE id = $1`
	f, err := scanFuelUp(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.FuelUp{}, ErrNotFound
		}
		return types.FuelUp{}, fmt.Errorf("get fuel-up: %w", err)
	}
	return f, nil
}

// ListByUser returns the user's fuel-ups, newest date first. Records on the
// same date keep insertion order. The result is never nil.
func (r *FuelUpRepository) ListByUser(ctx context.Context, userID string) ([]types.FuelUp, error) {
	query := `SELECT ` + fuelUpColumns + `
		FROM fuel_ups
		WHERE user_id = $1
		ORDER BY fuel_date DESC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list fuel-ups: %w", err)
	}
	defer rows.Close()

	items := make([]types.FuelUp, 0)
	for rows.Next() {
		f, err := scanFuelUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fuel-up: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fuel-ups: %w", err)
	}
	return items, nil
}

func (r *FuelUpRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM fuel_ups WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete fuel-up: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFuelUp(row rowScanner) (types.FuelUp, error) {
	var (
		f               types.FuelUp
		date, createdAt time.Time
		gallons, price  decimal.NullDecimal
		location, notes sql.NullString
	)
	if err := row.Scan(
		&f.ID,
		&f.UserID,
		&date,
		&gallons,
		&price,
		&f.EngineHours,
		&location,
		&notes,
		&createdAt,
	); err != nil {
		return types.FuelUp{}, err
	}
	f.Date = types.NormalizeDate(date)
	f.CreatedAt = createdAt
	f.Location = location.String
	f.Notes = notes.String
	f.SetGallons(gallons)
	f.SetPricePerGallon(price)
	return f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
