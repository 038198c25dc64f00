package storage

import (
	"database/sql"
	"range-meter/src/models"
	"time"
)

// dayKey stores a trading day as the unix second of its UTC midnight.
func dayKey(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// -----------------------------------------------------------------------------

func scanSymbols(rows *sql.Rows) ([]models.MSymbol, error) {
	var symbols []models.MSymbol
	for rows.Next() {
		var s models.MSymbol
		var class sql.NullString
		if err := rows.Scan(&s.ID, &s.DecimalDigits, &s.PipSize, &s.PipPosition, &class); err != nil {
			return nil, err
		}
		s.Class = class.String
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// -----------------------------------------------------------------------------

// scanBars reads newest-first rows and returns them oldest first.
func scanBars(rows *sql.Rows) ([]models.MDailyBar, error) {
	var bars []models.MDailyBar
	for rows.Next() {
		var b models.MDailyBar
		var day int64
		if err := rows.Scan(&b.SymbolID, &day, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, err
		}
		b.Day = time.Unix(day, 0).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}
