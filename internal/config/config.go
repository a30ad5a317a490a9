// Package config loads and validates the frozen configuration tree every
// payrolld process constructs its services from. Nothing in this package
// reads ambient defaults at call sites downstream — every field a service
// needs flows in through this tree, built with a defaults-then-override
// construction.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderType enumerates the rail kinds a provider entry may declare.
type ProviderType string

const (
	ProviderACH    ProviderType = "ach"
	ProviderFedNow ProviderType = "fednow"
	ProviderWire   ProviderType = "wire"
	ProviderRTP    ProviderType = "rtp"
	ProviderCheck  ProviderType = "check"
)

// LedgerConfig controls the PSP ledger's invariant enforcement (§4.6).
type LedgerConfig struct {
	RequireBalancedEntries bool `yaml:"require_balanced_entries"`
	AllowNegativeBalances  bool `yaml:"allow_negative_balances"`
	EnableReservations     bool `yaml:"enable_reservations"`
}

// FundingGateConfig controls when and how strictly the funding gate runs
// (§4.7).
type FundingGateConfig struct {
	CommitGateEnabled   bool `yaml:"commit_gate_enabled"`
	PayGateEnabled      bool `yaml:"pay_gate_enabled"`
	ReservationTTLHours int  `yaml:"reservation_ttl_hours"`
	AllowPartialFunding bool `yaml:"allow_partial_funding"`
}

// ReservationTTL converts ReservationTTLHours into a time.Duration for the
// ledger's CreateReservation call.
func (f FundingGateConfig) ReservationTTL() time.Duration {
	return time.Duration(f.ReservationTTLHours) * time.Hour
}

// ProviderConfig describes one configured rail provider entry (§6). Secrets
// (Credentials, WebhookSecret) are read from environment variables by name
// rather than stored in the YAML tree directly, keeping connection secrets
// out of any committed config file.
type ProviderConfig struct {
	Name              string       `yaml:"name"`
	ProviderType      ProviderType `yaml:"provider_type"`
	Sandbox           bool         `yaml:"sandbox"`
	CredentialsEnvVar string       `yaml:"credentials_env_var"`
	WebhookSecretEnv  string       `yaml:"webhook_secret_env_var"`
	TimeoutSeconds    int          `yaml:"timeout_seconds"`
	RetryCount        int          `yaml:"retry_count"`
	Priority          int          `yaml:"priority"`

	// Credentials and WebhookSecret are populated from the environment at
	// load time, never unmarshaled from YAML.
	Credentials   string `yaml:"-"`
	WebhookSecret string `yaml:"-"`
}

// Timeout returns the configured per-call timeout as a time.Duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// EventStoreConfig controls retention and batching for the domain event
// store (§4.11, §6).
type EventStoreConfig struct {
	// RetentionDays is the number of days events are retained before a
	// cleanup sweep may discard them. Zero means unlimited retention (the
	// spec's "or ∞" option).
	RetentionDays int `yaml:"retention_days"`
	BatchSize     int `yaml:"batch_size"`
}

// Unlimited reports whether this store retains events forever.
func (e EventStoreConfig) Unlimited() bool { return e.RetentionDays == 0 }

// ReconciliationConfig controls the scheduled settlement-pull cadence
// (§4.10, §5).
type ReconciliationConfig struct {
	Schedule     string `yaml:"schedule"`
	LookbackDays int    `yaml:"lookback_days"`
}

// LiabilityConfig controls the (optional) tax-liability classification and
// recovery workflow that the liability event category anticipates. This
// repository's core does not implement liability-recovery state machinery
// itself, but the event categories and config shape are carried so a
// future liability service can be wired in without a config-contract
// break.
type LiabilityConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the frozen, validated top-level configuration tree (§6). Once
// Load returns a *Config without error, every field has passed validation;
// nothing downstream re-checks it.
type Config struct {
	TenantID      string `yaml:"tenant_id"`
	LegalEntityID string `yaml:"legal_entity_id"`

	DatabaseURL string `yaml:"-"`

	Ledger         LedgerConfig         `yaml:"ledger"`
	FundingGate    FundingGateConfig    `yaml:"funding_gate"`
	Providers      []ProviderConfig     `yaml:"providers"`
	EventStore     EventStoreConfig     `yaml:"event_store"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Liability      LiabilityConfig      `yaml:"liability"`

	// AllowPayGateDisabled permits PayGateEnabled=false, which §6 otherwise
	// forbids outside of tests. Never set this from a loaded file; tests set
	// it directly on a Config literal.
	AllowPayGateDisabled bool `yaml:"-"`
}

// ConfigError reports a violation of the configuration contract. It is
// always fatal to initialization (§7).
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads a YAML configuration tree from path, resolves provider secrets
// from the environment, and validates the result eagerly. DATABASE_URL is
// always read from the environment — the connection string is never
// checked into a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.CredentialsEnvVar != "" {
			p.Credentials = os.Getenv(p.CredentialsEnvVar)
		}
		if p.WebhookSecretEnv != "" {
			p.WebhookSecret = os.Getenv(p.WebhookSecretEnv)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with every field set to the safe,
// production-shaped default, mirroring scheduler.DefaultConfig()'s
// defaults-then-override construction. Load starts from this before
// unmarshaling the caller's YAML over it.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			RequireBalancedEntries: true,
			EnableReservations:     true,
		},
		FundingGate: FundingGateConfig{
			CommitGateEnabled:   true,
			PayGateEnabled:      true,
			ReservationTTLHours: 24,
		},
		EventStore: EventStoreConfig{
			RetentionDays: 0,
			BatchSize:     500,
		},
		Reconciliation: ReconciliationConfig{
			Schedule:     "0 */4 * * *",
			LookbackDays: 2,
		},
	}
}

// Validate checks every constraint the configuration contract states (§6).
// It never mutates the receiver.
func (c *Config) Validate() error {
	if c.TenantID == "" {
		return &ConfigError{Field: "tenant_id", Message: "required"}
	}
	if c.LegalEntityID == "" {
		return &ConfigError{Field: "legal_entity_id", Message: "required"}
	}
	if c.DatabaseURL == "" {
		return &ConfigError{Field: "database_url", Message: "DATABASE_URL environment variable required"}
	}
	if !c.FundingGate.PayGateEnabled && !c.AllowPayGateDisabled {
		return &ConfigError{Field: "funding_gate.pay_gate_enabled", Message: "must be true outside tests"}
	}
	if c.FundingGate.ReservationTTLHours < 1 || c.FundingGate.ReservationTTLHours > 168 {
		return &ConfigError{Field: "funding_gate.reservation_ttl_hours", Message: "must be in [1, 168]"}
	}
	if c.EventStore.BatchSize < 1 || c.EventStore.BatchSize > 10000 {
		return &ConfigError{Field: "event_store.batch_size", Message: "must be in [1, 10000]"}
	}
	if c.EventStore.RetentionDays < 0 {
		return &ConfigError{Field: "event_store.retention_days", Message: "must be >= 0 (0 means unlimited)"}
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return &ConfigError{Field: fmt.Sprintf("providers[%d].name", i), Message: "required"}
		}
		if seen[p.Name] {
			return &ConfigError{Field: "providers", Message: fmt.Sprintf("duplicate provider name %q", p.Name)}
		}
		seen[p.Name] = true

		switch p.ProviderType {
		case ProviderACH, ProviderFedNow, ProviderWire, ProviderRTP, ProviderCheck:
		default:
			return &ConfigError{Field: fmt.Sprintf("providers[%d].provider_type", i), Message: fmt.Sprintf("unknown provider_type %q", p.ProviderType)}
		}
		if p.TimeoutSeconds <= 0 {
			return &ConfigError{Field: fmt.Sprintf("providers[%d].timeout_seconds", i), Message: "must be > 0"}
		}
		if p.RetryCount < 0 {
			return &ConfigError{Field: fmt.Sprintf("providers[%d].retry_count", i), Message: "must be >= 0"}
		}
	}
	return nil
}
