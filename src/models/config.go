package models

// MConfig Structure
type MConfig struct {
	Name     string          `yaml:"name"`
	Host     string          `yaml:"host"`
	Port     int             `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	GrpcHost string          `yaml:"grpc_host"`
	GrpcPort int             `yaml:"grpc_port"`
	Storage  MStorageConfig  `yaml:"storage"`
	Network  MNetworkConfig  `yaml:"network"`
	Upstream MUpstreamConfig `yaml:"upstream"`
	Server   MServerConfig   `yaml:"server"`
	Mirror   MMirrorConfig   `yaml:"mirror"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"`
	Proxy          string `yaml:"proxy"` // Optional
	UserAgent      string `yaml:"user_agent"`
}

type MUpstreamConfig struct {
	Type         string `yaml:"type"` // "feed" or "simulated"
	StreamURL    string `yaml:"stream_url"`
	RestURL      string `yaml:"rest_url"`
	APIKey       string `yaml:"api_key"` // Optional
	LookbackDays int    `yaml:"lookback_days"`

	// Instrument classes for which ask must exceed bid. Empty means no class is checked.
	AskAboveBidClasses []string `yaml:"ask_above_bid_classes"`

	DayRollCheckSeconds int `yaml:"day_roll_check_seconds"`

	Simulated MSimulatedConfig `yaml:"simulated"`
}

type MSimulatedConfig struct {
	Symbols         []MSymbol          `yaml:"symbols"`
	StartPrices     map[string]float64 `yaml:"start_prices"`
	NoHistory       []string           `yaml:"no_history"`
	TickIntervalMs  int                `yaml:"tick_interval_ms"`
	VolatilityPct   float64            `yaml:"volatility_pct"`
	HistoryRangePct float64            `yaml:"history_range_pct"`
	RandomSeed      int64              `yaml:"random_seed"`
}

type MServerConfig struct {
	ClientQueueSize int `yaml:"client_queue_size"`
}

type MMirrorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}
