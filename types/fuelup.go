package types

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of a fuel-up date.
const DateLayout = "2006-01-02"

const (
	MaxLocationLength = 500
	MaxNotesLength    = 2000

	amountScale      = 2
	engineHoursScale = 1
)

var (
	// maxAmount bounds gallons and price so they fit numeric(10,2).
	maxAmount = decimal.New(1, 8)
	// maxEngineHours bounds engine hours so they fit numeric(10,1).
	maxEngineHours = decimal.New(1, 9)
)

// FuelUp is a single refuelling event recorded by a user.
//
// Gallons, price per gallon and total cost are only reachable through
// accessors: every change to a factor recomputes the total so that
// TotalCost always equals Gallons * PricePerGallon once both are set.
type FuelUp struct {
	// ID is the store-assigned identifier. Zero until persisted.
	ID int64

	// UserID references the owning user.
	UserID string

	// Date is the calendar day of the fuel-up, normalised to UTC midnight.
	Date time.Time

	// EngineHours is the optional engine hour meter reading.
	EngineHours decimal.NullDecimal

	// Location is an optional free-text marina or place name.
	Location string

	// Notes is optional free text.
	Notes string

	// CreatedAt is set by the store when the record is inserted.
	CreatedAt time.Time

	gallons        decimal.NullDecimal
	pricePerGallon decimal.NullDecimal
	totalCost      decimal.NullDecimal
}

// NewFuelUp builds a fuel-up with both factors set and the total computed.
func NewFuelUp(userID string, date time.Time, gallons, pricePerGallon decimal.Decimal) FuelUp {
	f := FuelUp{
		UserID: userID,
		Date:   NormalizeDate(date),
	}
	f.SetGallons(decimal.NewNullDecimal(gallons))
	f.SetPricePerGallon(decimal.NewNullDecimal(pricePerGallon))
	return f
}

// NormalizeDate drops the time-of-day component, keeping the calendar day
// as seen in t's location.
func NormalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f FuelUp) Gallons() decimal.NullDecimal        { return f.gallons }
func (f FuelUp) PricePerGallon() decimal.NullDecimal { return f.pricePerGallon }
func (f FuelUp) TotalCost() decimal.NullDecimal      { return f.totalCost }

// SetGallons replaces the gallons and recomputes the total cost.
// A null value leaves the total cost untouched.
func (f *FuelUp) SetGallons(v decimal.NullDecimal) {
	f.gallons = v
	f.recomputeTotal()
}

// SetPricePerGallon replaces the unit price and recomputes the total cost.
// A null value leaves the total cost untouched.
func (f *FuelUp) SetPricePerGallon(v decimal.NullDecimal) {
	f.pricePerGallon = v
	f.recomputeTotal()
}

func (f *FuelUp) recomputeTotal() {
	if !f.gallons.Valid || !f.pricePerGallon.Valid {
		return
	}
	f.totalCost = decimal.NewNullDecimal(f.gallons.Decimal.Mul(f.pricePerGallon.Decimal))
}

// FieldError reports a single invalid field of a fuel-up.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks the record against the storage constraints and returns
// the first violation as a *FieldError.
func (f FuelUp) Validate() error {
	if f.UserID == "" {
		return &FieldError{Field: "user_id", Reason: "is required"}
	}
	if f.Date.IsZero() {
		return &FieldError{Field: "date", Reason: "is required"}
	}
	if err := checkAmount("gallons", f.gallons, true, amountScale, maxAmount); err != nil {
		return err
	}
	if err := checkAmount("price_per_gallon", f.pricePerGallon, true, amountScale, maxAmount); err != nil {
		return err
	}
	if err := checkAmount("engine_hours", f.EngineHours, false, engineHoursScale, maxEngineHours); err != nil {
		return err
	}
	if utf8.RuneCountInString(f.Location) > MaxLocationLength {
		return &FieldError{Field: "location", Reason: fmt.Sprintf("must be at most %d characters", MaxLocationLength)}
	}
	if utf8.RuneCountInString(f.Notes) > MaxNotesLength {
		return &FieldError{Field: "notes", Reason: fmt.Sprintf("must be at most %d characters", MaxNotesLength)}
	}
	return nil
}

func checkAmount(field string, v decimal.NullDecimal, required bool, scale int32, limit decimal.Decimal) error {
	if !v.Valid {
		if required {
			return &FieldError{Field: field, Reason: "is required"}
		}
		return nil
	}
	if v.Decimal.IsNegative() {
		return &FieldError{Field: field, Reason: "must not be negative"}
	}
	if !v.Decimal.Equal(v.Decimal.Truncate(scale)) {
		return &FieldError{Field: field, Reason: fmt.Sprintf("must have at most %d decimal places", scale)}
	}
	if v.Decimal.GreaterThanOrEqual(limit) {
		return &FieldError{Field: field, Reason: "is too large"}
	}
	return nil
}

type fuelUpJSON struct {
	ID             int64               `json:"id"`
	UserID         string              `json:"user_id"`
	Date           string              `json:"date"`
	Gallons        decimal.NullDecimal `json:"gallons"`
	PricePerGallon decimal.NullDecimal `json:"price_per_gallon"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	EngineHours    decimal.NullDecimal `json:"engine_hours"`
	Location       string              `json:"location,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	CreatedAt      *time.Time          `json:"created_at,omitempty"`
}

// MarshalJSON renders the record with its derived total cost.
func (f FuelUp) MarshalJSON() ([]byte, error) {
	out := fuelUpJSON{
		ID:             f.ID,
		UserID:         f.UserID,
		Gallons:        f.gallons,
		PricePerGallon: f.pricePerGallon,
		TotalCost:      f.totalCost,
		EngineHours:    f.EngineHours,
		Location:       f.Location,
		Notes:          f.Notes,
	}
	if !f.Date.IsZero() {
		out.Date = f.Date.Format(DateLayout)
	}
	if !f.CreatedAt.IsZero() {
		createdAt := f.CreatedAt
		out.CreatedAt = &createdAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a record. Any total_cost in the input is ignored
// and recomputed from the factors.
func (f *FuelUp) UnmarshalJSON(data []byte) error {
	var in fuelUpJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var date time.Time
	if in.Date != "" {
		parsed, err := time.Parse(DateLayout, in.Date)
		if err != nil {
			return &FieldError{Field: "date", Reason: "must be formatted as YYYY-MM-DD"}
		}
		date = parsed
	}

	*f = FuelUp{
		ID:          in.ID,
		UserID:      in.UserID,
		Date:        date,
		EngineHours: in.EngineHours,
		Location:    in.Location,
		Notes:       in.Notes,
	}
	if in.CreatedAt != nil {
		f.CreatedAt = *in.CreatedAt
	}
	f.SetGallons(in.Gallons)
	f.SetPricePerGallon(in.PricePerGallon)
	return nil
}
