package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/tokenwatch/transferscan/internal/common"
)

// USDCContractAddress is the token contract indexed when no other contract
// is configured.
const USDCContractAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

// DefaultRPCURL is the public endpoint used when ETHEREUM_RPC_URL is unset.
const DefaultRPCURL = "https://ethereum.publicnode.com"

// Config is the complete configuration for the transfer indexer.
type Config struct {
	// RPC contains the Ethereum RPC client configuration
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// Token identifies the token contract whose Transfer events are indexed
	Token TokenConfig `yaml:"token" json:"token" toml:"token"`

	// Scanner contains the block scanner configuration
	Scanner ScannerConfig `yaml:"scanner" json:"scanner" toml:"scanner"`

	// Database contains SQLite store configuration
	Database DatabaseConfig `yaml:"database" json:"database" toml:"database"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics server configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the read-only HTTP API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// ApplyDefaults sets default values for all optional fields.
func (c *Config) ApplyDefaults() {
	c.RPC.ApplyDefaults()
	c.Token.ApplyDefaults()
	c.Scanner.ApplyDefaults()
	c.Database.ApplyDefaults()

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.ApplyDefaults()

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return errors.New("rpc.url is required (set ETHEREUM_RPC_URL)")
	}
	if !ethcommon.IsHexAddress(c.Token.ContractAddress) {
		return fmt.Errorf("token.contract_address: %q is not a valid address", c.Token.ContractAddress)
	}
	if c.Scanner.BatchSize == 0 {
		return errors.New("scanner.batch_size must be greater than zero")
	}
	if c.Scanner.ReorgWindow == 0 {
		return errors.New("scanner.reorg_window must be greater than zero")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RPCConfig configures the Ethereum RPC client.
type RPCConfig struct {
	// URL is the Ethereum JSON-RPC endpoint
	URL string `yaml:"url" json:"url" toml:"url"`

	// RequestTimeout is the per-call timeout for RPC requests
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// Retry contains retry behavior for transient RPC failures
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for the RPC configuration.
func (r *RPCConfig) ApplyDefaults() {
	if r.URL == "" {
		r.URL = DefaultRPCURL
	}
	if r.RequestTimeout.Duration == 0 {
		r.RequestTimeout = common.NewDuration(30 * time.Second)
	}
	if r.Retry == nil {
		r.Retry = &RetryConfig{}
	}
	r.Retry.ApplyDefaults()
}

// RetryConfig configures exponential backoff for transient RPC errors.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the backoff before the first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff caps the backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the exponential growth factor
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for the retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(60 * time.Second)
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// TokenConfig identifies the indexed token contract.
type TokenConfig struct {
	// ContractAddress is the hex-encoded token contract address
	ContractAddress string `yaml:"contract_address" json:"contract_address" toml:"contract_address"`
}

// ApplyDefaults sets the USDC contract when no contract is configured.
func (t *TokenConfig) ApplyDefaults() {
	if t.ContractAddress == "" {
		t.ContractAddress = USDCContractAddress
	}
}

// Address returns the parsed contract address.
func (t *TokenConfig) Address() ethcommon.Address {
	return ethcommon.HexToAddress(t.ContractAddress)
}

// ScannerConfig configures the block scanner control loop.
type ScannerConfig struct {
	// BatchSize is the maximum number of blocks fetched per iteration
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// FinalityBlocks is the number of confirmations subtracted from the chain
	// head before a block is eligible for indexing
	FinalityBlocks uint64 `yaml:"finality_blocks" json:"finality_blocks" toml:"finality_blocks"`

	// ReorgWindow is the number of trailing stored blocks verified against
	// the live chain during a reorg check
	ReorgWindow uint64 `yaml:"reorg_window" json:"reorg_window" toml:"reorg_window"`

	// ReorgInterval is the cadence of reorg checks
	ReorgInterval common.Duration `yaml:"reorg_interval" json:"reorg_interval" toml:"reorg_interval"`

	// PollInterval is the sleep between iterations when the scanner has
	// caught up with the safe head
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// Backfill is the number of blocks behind the head to start from when
	// the store is empty and no explicit start block is given
	Backfill uint64 `yaml:"backfill" json:"backfill" toml:"backfill"`
}

// ApplyDefaults sets default values for the scanner configuration.
func (s *ScannerConfig) ApplyDefaults() {
	if s.BatchSize == 0 {
		s.BatchSize = 100
	}
	if s.FinalityBlocks == 0 {
		s.FinalityBlocks = 12
	}
	if s.ReorgWindow == 0 {
		s.ReorgWindow = 10
	}
	if s.ReorgInterval.Duration == 0 {
		s.ReorgInterval = common.NewDuration(1 * time.Minute)
	}
	if s.PollInterval.Duration == 0 {
		s.PollInterval = common.NewDuration(12 * time.Second)
	}
	if s.Backfill == 0 {
		s.Backfill = 1000
	}
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode ("WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the page cache size (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for the database configuration.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.Path == "" {
		d.Path = "./transfers.db"
	}
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error"
	Level string `yaml:"level" json:"level" toml:"level"`

	// Development enables the console encoder with stack traces
	Development bool `yaml:"development" json:"development" toml:"development"`
}

// ApplyDefaults sets default values for the logging configuration.
func (l *LoggingConfig) ApplyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
}

// Validate checks the logging configuration.
func (l *LoggingConfig) Validate() error {
	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, strings.ToLower(l.Level)) {
		return fmt.Errorf("logging.level: must be one of: %s", strings.Join(levels, ", "))
	}
	return nil
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled controls whether the metrics server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the host:port the metrics server binds to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path metrics are exposed on
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for the metrics configuration.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	// Enabled controls whether the API server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the host:port the API server binds to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`
}

// ApplyDefaults sets default values for the API configuration.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(10 * time.Second)
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second)
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second)
	}
}
