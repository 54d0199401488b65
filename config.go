package tenantauthz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the deployable configuration of an engine, its record store,
// its audit sink and optional seed records.
type Config struct {
	Version uint16        `json:"version" yaml:"version"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Audit   AuditConfig   `json:"audit" yaml:"audit"`
	Records []*UserRecord `json:"records,omitempty" yaml:"records,omitempty"`
}

type EngineConfig struct {
	SystemTenant       string   `json:"system_tenant" yaml:"system_tenant"`
	FetchTimeout       int64    `json:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
	OrganizationClaims []string `json:"organization_claims,omitempty" yaml:"organization_claims,omitempty"`
	VersionClaim       string   `json:"version_claim,omitempty" yaml:"version_claim,omitempty"`
	AuditBuffer        int      `json:"audit_buffer" yaml:"audit_buffer"`
	LagWindow          int64    `json:"lag_window_ms" yaml:"lag_window_ms"`
	LagNumCounters     int64    `json:"lag_num_counters" yaml:"lag_num_counters"`
	LagMaxCost         int64    `json:"lag_max_cost" yaml:"lag_max_cost"`
	LagBufferItems     int64    `json:"lag_buffer_items" yaml:"lag_buffer_items"`
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
	DriverRedis  = "redis"
	DriverSQL    = "sql"
	DriverNone   = "none"
)

type StoreConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	DSN    string      `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Redis  RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// AuditConfig selects the audit sink. The sql driver reuses the store DSN.
type AuditConfig struct {
	Driver string `json:"driver" yaml:"driver"`
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the decoder from the file extension.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks driver names and seed records.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", DriverMemory:
	case DriverSQLite, DriverPgx:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %s requires dsn", c.Store.Driver)
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store driver redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Audit.Driver {
	case "", DriverNone, DriverMemory:
	case DriverSQL:
		if c.Store.Driver != DriverSQLite && c.Store.Driver != DriverPgx {
			return fmt.Errorf("audit driver sql requires a sql store driver")
		}
	default:
		return fmt.Errorf("unknown audit driver %q", c.Audit.Driver)
	}
	if c.Engine.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout_ms must not be negative")
	}
	seen := make(map[string]bool, len(c.Records))
	for i, r := range c.Records {
		if r == nil {
			return fmt.Errorf("record %d is empty", i)
		}
		if r.OrganizationID == "" || r.SubjectID == "" {
			return fmt.Errorf("record %d: organization_id and subject_id are required", i)
		}
		key := r.OrganizationID + "/" + r.SubjectID
		if seen[key] {
			return fmt.Errorf("record %d: duplicate record %s", i, key)
		}
		seen[key] = true
		for _, g := range r.Permissions {
			if g.Resource == "" || len(g.Actions) == 0 {
				return fmt.Errorf("record %s: grant needs a resource and at least one action", key)
			}
		}
	}
	return nil
}

// EngineOptions translates the engine section into options.
func (c *Config) EngineOptions() []EngineOption {
	var opts []EngineOption
	ec := c.Engine
	if ec.SystemTenant != "" {
		opts = append(opts, WithSystemTenant(ec.SystemTenant))
	}
	if ec.FetchTimeout > 0 {
		opts = append(opts, WithFetchTimeout(time.Duration(ec.FetchTimeout)*time.Millisecond))
	}
	if len(ec.OrganizationClaims) > 0 || ec.VersionClaim != "" {
		opts = append(opts, WithClaimNames(ec.OrganizationClaims, ec.VersionClaim))
	}
	opts = append(opts, WithLagMonitor(LagMonitorConfig{
		Window:      time.Duration(ec.LagWindow) * time.Millisecond,
		NumCounters: ec.LagNumCounters,
		MaxCost:     ec.LagMaxCost,
		BufferItems: ec.LagBufferItems,
	}))
	return opts
}
