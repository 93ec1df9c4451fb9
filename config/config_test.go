package config_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/config"
)

const testCfg = `
chain:
  chain_id: 11155111
  rpc:
    host: https://sepolia.infura.io/v3/${INFURA_PROJECT_KEY}
    ws_host: wss://sepolia.infura.io/ws/v3/${INFURA_PROJECT_KEY}
    timeout: 20s
    rps: 10
  block_confirmations: 0
indexer:
  start_block: 5000000
  batch_size: 2000
  poll_interval: 3s
  retry:
    max_attempts: 3
tokens:
  - address: 0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238
  - address: 0x779877A7B0D9E8603169DdbD7836e478b4624789
    start_block: 6000000
postgres:
  user: test_user
  password: test_password
  host: test_host
  port: 5432
  database: test_db
log_level: debug
presenter:
  host: 0.0.0.0:3333
metrics:
  host: 0.0.0.0:2112
`

//nolint:paralleltest
func TestReadConfigWithEnv(t *testing.T) {
	t.Setenv("INFURA_PROJECT_KEY", "12345678")
	cfg, err := config.ReadConfigWithEnv([]byte(testCfg))
	require.NoError(t, err)
	require.Equal(t, &config.Config{
		Chain: &config.ChainConfig{
			RPC: &config.RPCConfig{
				Host:    "https://sepolia.infura.io/v3/12345678",
				WSHost:  "wss://sepolia.infura.io/ws/v3/12345678",
				Timeout: 20 * time.Second,
				RPS:     10,
			},
			ChainID: "11155111",
		},
		Indexer: &config.IndexerConfig{
			StartBlock:       5000000,
			BatchSize:        2000,
			BatchDelay:       100 * time.Millisecond,
			PollInterval:     3 * time.Second,
			BlockTimeWorkers: 8,
			Retry: &config.RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: time.Second,
				MaxBackoff:     30 * time.Second,
				Multiplier:     2,
			},
		},
		Tokens: []*config.TokenConfig{
			{Address: common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")},
			{Address: common.HexToAddress("0x779877A7B0D9E8603169DdbD7836e478b4624789"), StartBlock: 6000000},
		},
		DBConfig: &config.DBConfig{
			User:     "test_user",
			Password: "test_password",
			Host:     "test_host",
			Port:     5432,
			DB:       "test_db",
		},
		LogLevel: logrus.DebugLevel,
		Presenter: &config.PresenterConfig{
			Host: "0.0.0.0:3333",
		},
		Metrics: &config.MetricsConfig{
			Host: "0.0.0.0:2112",
		},
	}, cfg)
	require.True(t, cfg.Chain.UseSubscriptions())
	require.Equal(t, uint(5000000), cfg.TokenStartBlock(cfg.Tokens[0]))
	require.Equal(t, uint(6000000), cfg.TokenStartBlock(cfg.Tokens[1]))
}

func TestReadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.ReadConfig([]byte(`
chain:
  chain_id: 31337
  rpc:
    host: http://127.0.0.1:8545
  block_confirmations: 2
tokens:
  - address: 0x5FbDB2315678afecb367f032d93F642f64180aa3
`))
	require.NoError(t, err)
	require.Nil(t, cfg.DBConfig)
	require.Equal(t, uint(10000), cfg.Indexer.BatchSize)
	require.Equal(t, 5*time.Second, cfg.Indexer.PollInterval)
	require.Equal(t, 30*time.Second, cfg.Chain.RPC.Timeout)
	require.Equal(t, 5, cfg.Indexer.Retry.MaxAttempts)
	require.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	require.False(t, cfg.Chain.UseSubscriptions())
}

func TestReadConfigErrors(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name  string
		Input string
		Err   error
	}{
		{
			Name:  "No tokens",
			Input: "chain:\n  chain_id: 1\n",
			Err:   config.ErrNoTokens,
		},
		{
			Name:  "Duplicate token",
			Input: "tokens:\n  - address: 0x5FbDB2315678afecb367f032d93F642f64180aa3\n  - address: 0x5fbdb2315678afecb367f032d93f642f64180aa3\n",
			Err:   config.ErrInvalidAddress,
		},
		{
			Name:  "Zero token",
			Input: "tokens:\n  - address: 0x0000000000000000000000000000000000000000\n",
			Err:   config.ErrInvalidAddress,
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			_, err := config.ReadConfig([]byte(test.Input))
			require.ErrorIs(t, err, test.Err)
		})
	}

	_, err := config.ReadConfig([]byte("unknown_field: 1\n"))
	require.Error(t, err)
}
