// Package config loads the builder's configuration from environment
// variables (with optional flag overrides), following the spec's literal
// env var names rather than a dotted/prefixed key scheme.
package config

import (
	"fmt"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// defaults mirror the teacher's pattern of setting conservative defaults
// for everything that isn't safety-critical; chain IDs, addresses, and
// key material have no sane default and are required.
const (
	defaultBuilderPort               = 8080
	defaultIncomingTransactionsBuffer = 2 * time.Second
	defaultBlockConfirmationBuffer    = 6 * time.Second
	defaultRollupBlockGasLimit        = uint64(30_000_000)
	defaultTxPoolPollInterval         = time.Second
	defaultTxPoolCacheDuration        = 30 * time.Second
)

// Config is the builder's fully-resolved configuration.
type Config struct {
	HostChainID    uint64
	RUChainID      uint64
	HostRPCURL     string
	ZenithAddress  string
	QuinceyURL     string
	BuilderPort    int
	SequencerKey   string // hex privkey/KMS key id (local) or authorized sequencer hex address (remote, QuinceyURL set)
	BuilderKey     string

	IncomingTransactionsBuffer time.Duration
	// BlockConfirmationBuffer is plumbed through but unused by the
	// submission pipeline specified here (open question, see DESIGN.md).
	BlockConfirmationBuffer time.Duration
	BuilderRewardsAddress   string
	RollupBlockGasLimit     uint64

	TxPoolURL          string
	TxPoolPollInterval time.Duration
	TxPoolCacheDuration time.Duration

	OAuthClientID         string
	OAuthClientSecret     string
	OAuthAuthenticateURL  string
	OAuthTokenURL         string
	OAuthAudience         string
}

// ConfigError marks a missing or malformed environment variable. Fatal at
// startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: missing required %s", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads configuration from environment, following the literal key
// names §6 of the design names (no prefix, no dotted notation). Flags of
// the same name are accepted as overrides for local development.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("BUILDER_PORT", defaultBuilderPort)
	v.SetDefault("INCOMING_TRANSACTIONS_BUFFER", int(defaultIncomingTransactionsBuffer.Seconds()))
	v.SetDefault("BLOCK_CONFIRMATION_BUFFER", int(defaultBlockConfirmationBuffer.Seconds()))
	v.SetDefault("ROLLUP_BLOCK_GAS_LIMIT", defaultRollupBlockGasLimit)
	v.SetDefault("TX_POOL_POLL_INTERVAL", int(defaultTxPoolPollInterval.Seconds()))
	v.SetDefault("TX_POOL_CACHE_DURATION", int(defaultTxPoolCacheDuration.Seconds()))

	keys := []string{
		"HOST_CHAIN_ID", "RU_CHAIN_ID", "HOST_RPC_URL", "ZENITH_ADDRESS", "QUINCEY_URL",
		"BUILDER_PORT", "SEQUENCER_KEY", "BUILDER_KEY",
		"INCOMING_TRANSACTIONS_BUFFER", "BLOCK_CONFIRMATION_BUFFER",
		"BUILDER_REWARDS_ADDRESS", "ROLLUP_BLOCK_GAS_LIMIT",
		"TX_POOL_URL", "TX_POOL_POLL_INTERVAL", "TX_POOL_CACHE_DURATION",
		"OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "OAUTH_AUTHENTICATE_URL", "OAUTH_TOKEN_URL", "OAUTH_AUDIENCE",
	}
	for _, k := range keys {
		flag.String(k, "", fmt.Sprintf("override for env var %s", k))
		if err := v.BindEnv(k); err != nil {
			return nil, &ConfigError{Field: k, Err: err}
		}
	}
	flag.Parse()
	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, &ConfigError{Field: "flags", Err: err}
	}

	cfg := &Config{
		HostChainID:                v.GetUint64("HOST_CHAIN_ID"),
		RUChainID:                  v.GetUint64("RU_CHAIN_ID"),
		HostRPCURL:                 v.GetString("HOST_RPC_URL"),
		ZenithAddress:              v.GetString("ZENITH_ADDRESS"),
		QuinceyURL:                 v.GetString("QUINCEY_URL"),
		BuilderPort:                v.GetInt("BUILDER_PORT"),
		SequencerKey:               v.GetString("SEQUENCER_KEY"),
		BuilderKey:                 v.GetString("BUILDER_KEY"),
		IncomingTransactionsBuffer: time.Duration(v.GetInt64("INCOMING_TRANSACTIONS_BUFFER")) * time.Second,
		BlockConfirmationBuffer:    time.Duration(v.GetInt64("BLOCK_CONFIRMATION_BUFFER")) * time.Second,
		BuilderRewardsAddress:      v.GetString("BUILDER_REWARDS_ADDRESS"),
		RollupBlockGasLimit:        v.GetUint64("ROLLUP_BLOCK_GAS_LIMIT"),
		TxPoolURL:                  v.GetString("TX_POOL_URL"),
		TxPoolPollInterval:         time.Duration(v.GetInt64("TX_POOL_POLL_INTERVAL")) * time.Second,
		TxPoolCacheDuration:        time.Duration(v.GetInt64("TX_POOL_CACHE_DURATION")) * time.Second,
		OAuthClientID:              v.GetString("OAUTH_CLIENT_ID"),
		OAuthClientSecret:          v.GetString("OAUTH_CLIENT_SECRET"),
		OAuthAuthenticateURL:       v.GetString("OAUTH_AUTHENTICATE_URL"),
		OAuthTokenURL:              v.GetString("OAUTH_TOKEN_URL"),
		OAuthAudience:              v.GetString("OAUTH_AUDIENCE"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.HostChainID == 0 {
		return &ConfigError{Field: "HOST_CHAIN_ID"}
	}
	if cfg.RUChainID == 0 {
		return &ConfigError{Field: "RU_CHAIN_ID"}
	}
	if cfg.HostRPCURL == "" {
		return &ConfigError{Field: "HOST_RPC_URL"}
	}
	if cfg.ZenithAddress == "" {
		return &ConfigError{Field: "ZENITH_ADDRESS"}
	}
	if cfg.BuilderRewardsAddress == "" {
		return &ConfigError{Field: "BUILDER_REWARDS_ADDRESS"}
	}
	if cfg.BuilderKey == "" {
		return &ConfigError{Field: "BUILDER_KEY"}
	}
	// SEQUENCER_KEY is always required: locally it holds the signing key
	// material, remotely (QUINCEY_URL set) it holds the authorized
	// sequencer's hex address so the pipeline can verify the remote
	// signature against it (see DESIGN.md, "Authorized sequencer address
	// source").
	if cfg.SequencerKey == "" {
		return &ConfigError{Field: "SEQUENCER_KEY"}
	}
	if cfg.QuinceyURL != "" && cfg.OAuthTokenURL == "" {
		return &ConfigError{Field: "OAUTH_TOKEN_URL", Err: fmt.Errorf("required when QUINCEY_URL is set")}
	}
	if cfg.TxPoolURL == "" {
		return &ConfigError{Field: "TX_POOL_URL"}
	}
	return nil
}
