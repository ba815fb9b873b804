package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the workspace configuration file.
const FileName = "ledgercore.yaml"

// Config represents the top-level ledgercore.yaml configuration.
type Config struct {
	Business BusinessConfig `yaml:"business"`
	Fiscal   FiscalConfig   `yaml:"fiscal"`
	Database DatabaseConfig `yaml:"database"`
	Posting  PostingConfig  `yaml:"posting"`
	Matching MatchingConfig `yaml:"matching"`
	CashFlow CashFlowConfig `yaml:"cash_flow"`
	Server   ServerConfig   `yaml:"server"`
}

// BusinessConfig identifies the client company whose books are kept.
type BusinessConfig struct {
	Name    string `yaml:"name"`
	TaxID   string `yaml:"tax_id,omitempty"`
	Auditor string `yaml:"auditor,omitempty"`
}

// FiscalConfig defines the fiscal year boundaries.
type FiscalConfig struct {
	YearStart string `yaml:"year_start"` // "MM-DD" format, e.g. "01-01"
}

// DatabaseConfig locates the SQLite ledger.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PostingConfig holds the posting epsilon and the accounts each business
// template posts to.
type PostingConfig struct {
	Epsilon  float64         `yaml:"epsilon"`
	Accounts PostingAccounts `yaml:"accounts"`
}

// PostingAccounts maps template roles to chart codes.
type PostingAccounts struct {
	Receivable     string `yaml:"receivable"`
	Revenue        string `yaml:"revenue"`
	Payable        string `yaml:"payable"`
	DefaultExpense string `yaml:"default_expense"`
	OpeningEquity  string `yaml:"opening_equity"`
}

// MatchingConfig tunes the reconciliation matcher.
type MatchingConfig struct {
	AmountTolerance       float64       `yaml:"amount_tolerance"`
	BulkThreshold         float64       `yaml:"bulk_threshold"`
	AutoApply             float64       `yaml:"auto_apply"`
	ReviewFloor           float64       `yaml:"review_floor"`
	NamePrefixLength      int           `yaml:"name_prefix_length"`
	UnclassifiedDirection string        `yaml:"unclassified_direction"` // "debit" or "unknown"
	AdvisorTimeout        time.Duration `yaml:"advisor_timeout"`
}

// CashFlowConfig tunes the forward projection.
type CashFlowConfig struct {
	HorizonDays   int     `yaml:"horizon_days"`
	MaxAlerts     int     `yaml:"max_alerts"`
	CriticalAbove float64 `yaml:"critical_above"`
	HighAbove     float64 `yaml:"high_above"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads a ledgercore.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new workspace.
func Default(businessName string) *Config {
	return &Config{
		Business: BusinessConfig{
			Name: businessName,
		},
		Fiscal: FiscalConfig{
			YearStart: "01-01",
		},
		Database: DatabaseConfig{
			Path: "ledger.db",
		},
		Posting: PostingConfig{
			Epsilon: 0.01,
			Accounts: PostingAccounts{
				Receivable:     "1.1.2.01",
				Revenue:        "3.1.1.01",
				Payable:        "2.1.1.01",
				DefaultExpense: "4.1.2.99",
				OpeningEquity:  "5.2.1.02",
			},
		},
		Matching: MatchingConfig{
			AmountTolerance:       0.01,
			BulkThreshold:         10000,
			AutoApply:             0.95,
			ReviewFloor:           0.70,
			NamePrefixLength:      15,
			UnclassifiedDirection: "debit",
			AdvisorTimeout:        2 * time.Second,
		},
		CashFlow: CashFlowConfig{
			HorizonDays:   30,
			MaxAlerts:     5,
			CriticalAbove: 10000,
			HighAbove:     5000,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// ApplyEnv overrides fields from LEDGERCORE_* environment variables. An
// optional .env file is loaded first; variables already set in the process
// environment win over the file.
func (c *Config) ApplyEnv(envPath ...string) error {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LEDGERCORE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LEDGERCORE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("LEDGERCORE_UNCLASSIFIED_DIRECTION"); v != "" {
		c.Matching.UnclassifiedDirection = v
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"LEDGERCORE_AMOUNT_TOLERANCE", &c.Matching.AmountTolerance},
		{"LEDGERCORE_BULK_THRESHOLD", &c.Matching.BulkThreshold},
		{"LEDGERCORE_AUTO_APPLY", &c.Matching.AutoApply},
		{"LEDGERCORE_REVIEW_FLOOR", &c.Matching.ReviewFloor},
		{"LEDGERCORE_POSTING_EPSILON", &c.Posting.Epsilon},
	}
	for _, f := range floats {
		if err := parseFloatEnv(f.key, f.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"LEDGERCORE_MAX_ALERTS", &c.CashFlow.MaxAlerts},
		{"LEDGERCORE_HORIZON_DAYS", &c.CashFlow.HorizonDays},
		{"LEDGERCORE_NAME_PREFIX_LENGTH", &c.Matching.NamePrefixLength},
	}
	for _, i := range ints {
		if err := parseIntEnv(i.key, i.dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that tunables are usable.
func (c *Config) Validate() error {
	if c.Matching.AmountTolerance < 0 {
		return fmt.Errorf("matching.amount_tolerance must not be negative")
	}
	if c.Matching.AutoApply < c.Matching.ReviewFloor {
		return fmt.Errorf("matching.auto_apply (%.2f) below review_floor (%.2f)", c.Matching.AutoApply, c.Matching.ReviewFloor)
	}
	if c.Matching.NamePrefixLength <= 0 {
		return fmt.Errorf("matching.name_prefix_length must be positive")
	}
	switch c.Matching.UnclassifiedDirection {
	case "debit", "unknown":
	default:
		return fmt.Errorf("matching.unclassified_direction must be debit or unknown, got %q", c.Matching.UnclassifiedDirection)
	}
	if c.Posting.Epsilon < 0 {
		return fmt.Errorf("posting.epsilon must not be negative")
	}
	if c.CashFlow.MaxAlerts < 0 {
		return fmt.Errorf("cash_flow.max_alerts must not be negative")
	}
	return nil
}

// FiscalYearStart returns the first day of the fiscal year containing t.
func (c *Config) FiscalYearStart(t time.Time) (time.Time, error) {
	md, err := time.Parse("01-02", c.Fiscal.YearStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing fiscal.year_start %q: %w", c.Fiscal.YearStart, err)
	}
	start := time.Date(t.Year(), md.Month(), md.Day(), 0, 0, 0, 0, time.UTC)
	if start.After(t) {
		start = start.AddDate(-1, 0, 0)
	}
	return start, nil
}

func parseFloatEnv(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func parseIntEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
