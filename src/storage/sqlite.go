package storage

import (
	"database/sql"
	"fmt"
	"range-meter/src/logger"
	"range-meter/src/models"
	"time"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	// A single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS symbols (
			symbol TEXT PRIMARY KEY,
			digits INTEGER,
			pip_size REAL,
			pip_position INTEGER,
			class TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create symbols: %w", err)
	}

	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	query = `
		CREATE TABLE IF NOT EXISTS daily_bars (
			symbol TEXT,
			day INTEGER,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			PRIMARY KEY (symbol, day)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create daily_bars: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveSymbols(symbols []models.MSymbol) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO symbols (symbol, digits, pip_size, pip_position, class, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			digits = excluded.digits,
			pip_size = excluded.pip_size,
			pip_position = excluded.pip_position,
			class = excluded.class,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range symbols {
		if _, err := stmt.Exec(s.ID, s.DecimalDigits, s.PipSize, s.PipPosition, s.Class, time.Now().UTC()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadSymbols() ([]models.MSymbol, error) {
	rows, err := d.DB.Query(`SELECT symbol, digits, pip_size, pip_position, class FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveDailyBars(bars []models.MDailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_bars (symbol, day, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, day) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.SymbolID, dayKey(b.Day), b.Open, b.High, b.Low, b.Close); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) LoadDailyBars(symbolID string, before time.Time, limit int) ([]models.MDailyBar, error) {
	rows, err := d.DB.Query(`
		SELECT symbol, day, open, high, low, close FROM daily_bars
		WHERE symbol = ? AND day < ?
		ORDER BY day DESC
		LIMIT ?
	`, symbolID, dayKey(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	d.Logger.Info("Cleaning up bars older than %d days (day < %s)...", retentionDays, cutoff.Format("2006-01-02"))

	if _, err := d.DB.Exec("DELETE FROM daily_bars WHERE day < ?", dayKey(cutoff)); err != nil {
		return fmt.Errorf("cleanup daily_bars: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
