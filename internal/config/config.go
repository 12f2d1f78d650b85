package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/web3"
)

const (
	// EnvConfigPath points at the JSON configuration file.
	EnvConfigPath = "COUNTER_CONFIG"
	// EnvCluster overrides network.cluster.
	EnvCluster = "COUNTER_CLUSTER"
	// EnvRPCURL overrides network.rpc_url.
	EnvRPCURL = "COUNTER_RPC_URL"

	// DefaultPath is used when COUNTER_CONFIG is unset.
	DefaultPath = "configs/counter.json"
)

// Config is the root of counter.json.
type Config struct {
	Network  NetworkConfig  `json:"network"`
	Workflow WorkflowConfig `json:"workflow"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Notify   NotifyConfig   `json:"notify"`
	Metrics  MetricsConfig  `json:"metrics"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// NetworkConfig selects the cluster and the submission policy.
type NetworkConfig struct {
	ClusterConfig       string          `json:"cluster_config"`
	Cluster             string          `json:"cluster"`
	RPCURL              string          `json:"rpc_url"`
	Commitment          string          `json:"commitment"`
	SkipPreflight       *bool           `json:"skip_preflight"`
	PreflightCommitment string          `json:"preflight_commitment"`
	AirdropLamports     uint64          `json:"airdrop_lamports"`
	RequestsPerSecond   float64         `json:"requests_per_second"`
	Burst               int             `json:"burst"`
	PollInterval        Duration        `json:"poll_interval"`
	MaxPollInterval     Duration        `json:"max_poll_interval"`
	Simulated           SimulatedConfig `json:"simulated"`
}

// SimulatedConfig tunes clusters of type "simulated".
type SimulatedConfig struct {
	MinimumBalance uint64 `json:"minimum_balance"`
	FaucetQuota    uint64 `json:"faucet_quota"`
}

// WorkflowConfig shapes the account and the instruction of a run.
type WorkflowConfig struct {
	AccountSpace uint64   `json:"account_space"`
	Opcode       uint8    `json:"opcode"`
	RunTimeout   Duration `json:"run_timeout"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig controls the per-run audit log.
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// StorageConfig groups persistence backends.
type StorageConfig struct {
	RunStore RunStoreConfig `json:"run_store"`
}

// RunStoreConfig selects where run history is kept: memory, mysql or none.
type RunStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// NotifyConfig lists the sinks a run outcome is published to. Empty sections
// are disabled.
type NotifyConfig struct {
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig publishes outcomes by LPUSH onto a list.
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	List     string `json:"list"`
}

// RabbitMQConfig publishes outcomes to a durable queue.
type RabbitMQConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

// MetricsConfig pushes run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url"`
	Job            string `json:"job"`
}

// RuntimeConfig holds process-level parameters.
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load parses the JSON configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "config path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse config")
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// Default returns the built-in configuration rooted at baseDir.
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// LoadFromEnv resolves the configuration the CLI runs with. An explicit
// COUNTER_CONFIG must exist; the default path may be absent, in which case
// the built-in defaults apply.
func LoadFromEnv() (*Config, error) {
	path, explicit := os.LookupEnv(EnvConfigPath)
	if !explicit || strings.TrimSpace(path) == "" {
		path = DefaultPath
		explicit = false
	}

	cfg, err := Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = Default(".")
	default:
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvCluster)); v != "" {
		c.Network.Cluster = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRPCURL)); v != "" {
		c.Network.RPCURL = v
	}
}

// applyDefaults fills fields the user left empty.
func (c *Config) applyDefaults(baseDir string) {
	if c.Network.Cluster == "" {
		c.Network.Cluster = "devnet"
	}
	if c.Network.ClusterConfig != "" && !filepath.IsAbs(c.Network.ClusterConfig) {
		c.Network.ClusterConfig = filepath.Join(baseDir, c.Network.ClusterConfig)
	}
	if c.Network.Commitment == "" {
		c.Network.Commitment = string(web3.CommitmentConfirmed)
	}
	if c.Network.SkipPreflight == nil {
		skip := true
		c.Network.SkipPreflight = &skip
	}
	if c.Network.PreflightCommitment == "" {
		c.Network.PreflightCommitment = c.Network.Commitment
	}
	if c.Network.AirdropLamports == 0 {
		c.Network.AirdropLamports = 2_000_000_000
	}
	if c.Network.Burst <= 0 {
		c.Network.Burst = 4
	}
	if c.Network.PollInterval <= 0 {
		c.Network.PollInterval = Duration(500 * time.Millisecond)
	}
	if c.Network.MaxPollInterval <= 0 {
		c.Network.MaxPollInterval = Duration(4 * time.Second)
	}

	if c.Workflow.AccountSpace == 0 {
		c.Workflow.AccountSpace = 8
	}
	if c.Workflow.RunTimeout <= 0 {
		c.Workflow.RunTimeout = Duration(2 * time.Minute)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}

	if c.Storage.RunStore.Driver == "" {
		c.Storage.RunStore.Driver = "memory"
	}
	if c.Notify.Redis.List == "" {
		c.Notify.Redis.List = "counter:runs"
	}
	if c.Notify.RabbitMQ.Queue == "" {
		c.Notify.RabbitMQ.Queue = "counter.runs"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "counterctl"
	}
}

// Validate rejects values the workflow cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf(format, args...))
	}

	if _, err := web3.ParseCommitment(c.Network.Commitment); err != nil {
		return invalid("network.commitment: %v", err)
	}
	if _, err := web3.ParseCommitment(c.Network.PreflightCommitment); err != nil {
		return invalid("network.preflight_commitment: %v", err)
	}
	if c.Workflow.AccountSpace == 0 {
		return invalid("workflow.account_space must be positive")
	}
	if c.Network.RequestsPerSecond < 0 {
		return invalid("network.requests_per_second must not be negative")
	}

	switch strings.ToLower(c.Storage.RunStore.Driver) {
	case "memory", "none":
	case "mysql":
		if strings.TrimSpace(c.Storage.RunStore.DSN) == "" {
			return invalid("storage.run_store.dsn is required for the mysql driver")
		}
	default:
		return invalid("storage.run_store.driver %q is not supported", c.Storage.RunStore.Driver)
	}
	return nil
}

// Submit returns the submission policy derived from the network section.
func (c *Config) Submit() web3.SubmitOptions {
	commitment, _ := web3.ParseCommitment(c.Network.Commitment)
	preflight, _ := web3.ParseCommitment(c.Network.PreflightCommitment)
	skip := true
	if c.Network.SkipPreflight != nil {
		skip = *c.Network.SkipPreflight
	}
	return web3.SubmitOptions{
		Commitment:          commitment,
		SkipPreflight:       skip,
		PreflightCommitment: preflight,
	}
}
