package config

import (
	"fmt"
	"time"
)

// Config represents a keeperdata.yaml configuration file.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Lock     LockConfig     `yaml:"lock"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Cleanse  CleanseConfig  `yaml:"cleanse"`
	Datasets string         `yaml:"datasets"`
}

// StorageConfig configures the external/internal object store instances.
type StorageConfig struct {
	Backend         string `yaml:"backend"` // "s3" or "memory"
	ExternalBucket  string `yaml:"external_bucket"`
	ExternalPrefix  string `yaml:"external_prefix"`
	InternalBucket  string `yaml:"internal_bucket"`
	InternalPrefix  string `yaml:"internal_prefix"`
	ReportsPrefix   string `yaml:"reports_prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	S3PathStyle     bool   `yaml:"s3_path_style"`
}

// CryptoConfig configures StreamingCrypto.
type CryptoConfig struct {
	Salt string `yaml:"salt"`
}

// LockConfig configures the distributed lock backend. Only Backend and
// RedisURL are read when the lock is built; TTL and RenewEvery are
// parsed and defaulted but not read: the cleanse coordinator uses its
// fixed LockTTL and RenewInterval.
type LockConfig struct {
	Backend  string   `yaml:"backend"` // "redis" or "memory"
	RedisURL string   `yaml:"redis_url"`
	TTL      Duration `yaml:"ttl"`
	RenewEvery Duration `yaml:"renew_every"`
}

// IngestionConfig configures the ingestion phase's worker pool.
type IngestionConfig struct {
	Workers int `yaml:"workers"`
}

// CleanseConfig holds the cleanse settings. ReportURLTTL sets the report
// link's presign TTL. PageSize is parsed and defaulted but not read: the
// engine pages with its fixed pageSize of 100.
type CleanseConfig struct {
	PageSize      int      `yaml:"page_size"`
	ReportURLTTL  Duration `yaml:"report_url_ttl"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// the spec-mandated defaults (§4.4 worker count, §4.9/§4.11 lock TTLs,
// §4.7 page size, §4.10 presign TTL).
func (c Config) WithDefaults() Config {
	if c.Ingestion.Workers <= 0 {
		c.Ingestion.Workers = 1
	}
	if c.Lock.TTL.Duration <= 0 {
		c.Lock.TTL.Duration = 5 * time.Minute
	}
	if c.Lock.RenewEvery.Duration <= 0 {
		c.Lock.RenewEvery.Duration = 2 * time.Minute
	}
	if c.Cleanse.PageSize <= 0 {
		c.Cleanse.PageSize = 100
	}
	if c.Cleanse.ReportURLTTL.Duration <= 0 {
		c.Cleanse.ReportURLTTL.Duration = 7 * 24 * time.Hour
	}
	return c
}
