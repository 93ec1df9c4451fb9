package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize        = 10000
	defaultBatchDelay       = 100 * time.Millisecond
	defaultPollInterval     = 5 * time.Second
	defaultBlockTimeWorkers = 8
	defaultRPCTimeout       = 30 * time.Second
)

var (
	ErrNoTokens       = errors.New("at least one token should be configured")
	ErrInvalidAddress = errors.New("invalid token address")
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	WSHost  string        `yaml:"ws_host"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
}

type ChainConfig struct {
	RPC                *RPCConfig `yaml:"rpc"`
	ChainID            string     `yaml:"chain_id"`
	BlockConfirmations uint       `yaml:"block_confirmations"`
	SafeLogsRequest    bool       `yaml:"safe_logs_request"`
}

// UseSubscriptions reports whether live events should be received over eth_subscribe.
// Confirmed tailing is only possible with polling.
func (cfg *ChainConfig) UseSubscriptions() bool {
	return cfg.RPC.WSHost != "" && cfg.BlockConfirmations == 0
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff == 0 {
		r.InitialBackoff = time.Second
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = 30 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2
	}
}

type IndexerConfig struct {
	StartBlock       uint          `yaml:"start_block"`
	BatchSize        uint          `yaml:"batch_size"`
	BatchDelay       time.Duration `yaml:"batch_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	BlockTimeWorkers int           `yaml:"block_time_workers"`
	Retry            *RetryConfig  `yaml:"retry"`
}

func (cfg *IndexerConfig) ApplyDefaults() {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = defaultBatchDelay
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BlockTimeWorkers == 0 {
		cfg.BlockTimeWorkers = defaultBlockTimeWorkers
	}
	if cfg.Retry == nil {
		cfg.Retry = new(RetryConfig)
	}
	cfg.Retry.ApplyDefaults()
}

type TokenConfig struct {
	Address    common.Address `yaml:"address"`
	StartBlock uint           `yaml:"start_block"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type MetricsConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chain     *ChainConfig     `yaml:"chain"`
	Indexer   *IndexerConfig   `yaml:"indexer"`
	Tokens    []*TokenConfig   `yaml:"tokens"`
	DBConfig  *DBConfig        `yaml:"postgres"`
	LogLevel  logrus.Level     `yaml:"log_level"`
	Presenter *PresenterConfig `yaml:"presenter"`
	Metrics   *MetricsConfig   `yaml:"metrics"`
}

// TokenStartBlock returns the block after which indexing of the token begins.
func (cfg *Config) TokenStartBlock(token *TokenConfig) uint {
	if token.StartBlock > 0 {
		return token.StartBlock
	}
	return cfg.Indexer.StartBlock
}

func (cfg *Config) init() error {
	if cfg.Chain == nil {
		cfg.Chain = new(ChainConfig)
	}
	if cfg.Chain.RPC == nil {
		cfg.Chain.RPC = new(RPCConfig)
	}
	if cfg.Chain.RPC.Timeout == 0 {
		cfg.Chain.RPC.Timeout = defaultRPCTimeout
	}
	if cfg.Indexer == nil {
		cfg.Indexer = new(IndexerConfig)
	}
	cfg.Indexer.ApplyDefaults()
	if len(cfg.Tokens) == 0 {
		return ErrNoTokens
	}
	seen := make(map[common.Address]bool, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		if token.Address == (common.Address{}) {
			return fmt.Errorf("zero address: %w", ErrInvalidAddress)
		}
		if seen[token.Address] {
			return fmt.Errorf("duplicate token %s: %w", strings.ToLower(token.Address.Hex()), ErrInvalidAddress)
		}
		seen[token.Address] = true
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logrus.InfoLevel
	}
	return nil
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
