package storage

import (
	"range-meter/src/models"
	"time"
)

// NoopDB is used when storage.db_type is "none": nothing is cached.
type NoopDB struct{}

func (NoopDB) Initialize() error { return nil }

func (NoopDB) SaveSymbols([]models.MSymbol) error { return nil }

func (NoopDB) LoadSymbols() ([]models.MSymbol, error) { return nil, nil }

func (NoopDB) SaveDailyBars([]models.MDailyBar) error { return nil }

func (NoopDB) LoadDailyBars(string, time.Time, int) ([]models.MDailyBar, error) { return nil, nil }

func (NoopDB) CleanupOldData() error { return nil }

func (NoopDB) Close() error { return nil }
