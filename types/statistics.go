package types

import "github.com/shopspring/decimal"

// Statistics summarises a user's fuel-ups.
type Statistics struct {
	// Count is the number of fuel-ups considered.
	Count int `json:"count"`

	// TotalGallons is the sum of gallons across all fuel-ups.
	TotalGallons decimal.Decimal `json:"total_gallons"`

	// TotalCost is the sum of total cost across all fuel-ups.
	TotalCost decimal.Decimal `json:"total_cost"`

	// AvgPricePerGallon is the unweighted mean of the per-record price.
	AvgPricePerGallon decimal.Decimal `json:"avg_price_per_gallon"`
}
