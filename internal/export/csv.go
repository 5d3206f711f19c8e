// Package export renders fuel-ups for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/boatfuel/fueltracker/types"
	"github.com/shopspring/decimal"
)

// ContentType is the MIME type of WriteCSV output.
const ContentType = "text/csv"

var header = []string{"id", "date", "gallons", "price_per_gallon", "total_cost", "engine_hours", "location", "notes"}

const (
	fileNamePrefix = "fuel-export-"
	fileNameSuffix = ".csv"
)

// FileName names an export object written at the given unix millisecond.
func FileName(unixMillis int64) string {
	return fmt.Sprintf("%s%d%s", fileNamePrefix, unixMillis, fileNameSuffix)
}

// IsFileName reports whether name is something FileName produces.
func IsFileName(name string) bool {
	if !strings.HasPrefix(name, fileNamePrefix) || !strings.HasSuffix(name, fileNameSuffix) {
		return false
	}
	millis := strings.TrimSuffix(strings.TrimPrefix(name, fileNamePrefix), fileNameSuffix)
	if millis == "" {
		return false
	}
	for _, r := range millis {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// WriteCSV writes one header row and one row per fuel-up.
func WriteCSV(w io.Writer, items []types.FuelUp) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, f := range items {
		record := []string{
			strconv.FormatInt(f.ID, 10),
			f.Date.Format(types.DateLayout),
			formatAmount(f.Gallons(), 2),
			formatAmount(f.PricePerGallon(), 2),
			formatAmount(f.TotalCost(), 4),
			formatAmount(f.EngineHours, 1),
			textCell(f.Location),
			textCell(f.Notes),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// textCell keeps spreadsheets from evaluating free text as a formula.
func textCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

func formatAmount(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(places)
}
