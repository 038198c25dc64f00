package storage

import (
	"fmt"
	"range-meter/src/models"
	"time"
)

// Info: Separate file for Symbol Registration logic specific to Postgres

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveSymbols(symbols []models.MSymbol) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableName := fmt.Sprintf(`"%s"."symbols"`, d.Schema)
	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, digits, pip_size, pip_position, class, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			digits = EXCLUDED.digits,
			pip_size = EXCLUDED.pip_size,
			pip_position = EXCLUDED.pip_position,
			class = EXCLUDED.class,
			updated_at = EXCLUDED.updated_at
	`, tableName)

	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range symbols {
		_, err := stmt.Exec(s.ID, s.DecimalDigits, s.PipSize, s.PipPosition, s.Class, time.Now().UTC())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) LoadSymbols() ([]models.MSymbol, error) {
	query := fmt.Sprintf(`SELECT symbol, digits, pip_size, pip_position, class FROM "%s"."symbols" ORDER BY symbol`, d.Schema)

	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSymbols(rows)
}
