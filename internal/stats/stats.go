// Package stats computes summary figures over a user's fuel-ups.
package stats

import (
	"github.com/boatfuel/fueltracker/types"
	"github.com/shopspring/decimal"
)

// Aggregate summarises records. The average price is the unweighted mean of
// each record's price per gallon; empty input yields all-zero statistics.
func Aggregate(records []types.FuelUp) types.Statistics {
	out := types.Statistics{
		TotalGallons:      decimal.Zero,
		TotalCost:         decimal.Zero,
		AvgPricePerGallon: decimal.Zero,
	}
	if len(records) == 0 {
		return out
	}

	priceSum := decimal.Zero
	priced := 0
	for _, r := range records {
		out.Count++
		if g := r.Gallons(); g.Valid {
			out.TotalGallons = out.TotalGallons.Add(g.Decimal)
		}
		if c := r.TotalCost(); c.Valid {
			out.TotalCost = out.TotalCost.Add(c.Decimal)
		}
		if p := r.PricePerGallon(); p.Valid {
			priceSum = priceSum.Add(p.Decimal)
			priced++
		}
	}
	if priced > 0 {
		out.AvgPricePerGallon = priceSum.Div(decimal.NewFromInt(int64(priced)))
	}
	return out
}
