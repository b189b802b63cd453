package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "xmrgatewayd.conf"
	defaultListenAddr     = "127.0.0.1:8080"
	defaultDaemonURL      = "http://127.0.0.1:18081"
	defaultLogLevel       = "info"
	defaultScanIntervalMs = 1000
)

// walletConfig mirrors spec §6's "wallet" section.
type walletConfig struct {
	PrimaryAddress string `long:"primary-address" description:"the merchant's primary Monero address (not a subaddress)" required:"true"`
	AccountIndex   uint32 `long:"account-index" description:"subaddress account (major) index to derive under" default:"0"`
	RestoreHeight  uint64 `long:"restore-height" description:"block height to start scanning from if no state has been persisted yet"`
}

// daemonConfig mirrors spec §6's "daemon" section.
type daemonConfig struct {
	URL              string `long:"rpc-url" description:"monerod JSON-RPC endpoint" default:"http://127.0.0.1:18081"`
	RPCUser          string `long:"rpc-user" description:"monerod RPC login username (sent as HTTP Basic auth)"`
	RPCPass          string `long:"rpc-pass" description:"monerod RPC login password (sent as HTTP Basic auth)"`
	ScanIntervalMs   int    `long:"scan-interval-ms" description:"milliseconds between scan ticks" default:"1000"`
}

// databaseConfig mirrors spec §6's "database" section.
type databaseConfig struct {
	DeleteExpired bool `long:"delete-expired" description:"remove expired, unpaid invoices automatically" default:"true"`
}

// callbackConfig mirrors spec §6's "callback" section.
type callbackConfig struct {
	QueueSize     int     `long:"queue-size" description:"maximum callback deliveries buffered awaiting a worker (retries in backoff not counted)"`
	Workers       int     `long:"workers" description:"concurrent callback delivery workers"`
	RatePerSecond float64 `long:"rate-per-second" description:"maximum aggregate outbound callback rate"`
}

// httpConfig configures the internal/httpapi adapter.
type httpConfig struct {
	ListenAddr      string `long:"listenaddr" description:"REST+WS listen address" default:"127.0.0.1:8080"`
	Disable         bool   `long:"disable" description:"run the scanner without the HTTP adapter"`
	MacaroonKeyHex  string `long:"macaroon-key" description:"hex-encoded root key for minting/verifying bearer macaroons; if empty, a random root key is generated at startup, so authorization stays on and no externally minted macaroon is accepted"`
	MetricsEnabled  bool   `long:"metrics" description:"expose Prometheus metrics at /metrics" long-description:"requires the HTTP adapter to be enabled"`
}

// config is the top-level configuration, parsed from a config file and
// command-line flags via jessevdk/go-flags, in dcrlnd's own config.go
// style (one struct per §6 section, composed by embedding).
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"path to configuration file"`
	LogDir     string `long:"logdir" description:"directory to write rotated log files to" default:"./logs"`
	LogLevel   string `long:"loglevel" description:"log level for all subsystems (trace|debug|info|warn|error|critical)" default:"info"`

	Wallet   walletConfig   `group:"Wallet" namespace:"wallet"`
	Daemon   daemonConfig   `group:"Daemon" namespace:"daemon"`
	Database databaseConfig `group:"Database" namespace:"database"`
	Callback callbackConfig `group:"Callback" namespace:"callback"`
	HTTP     httpConfig     `group:"HTTP" namespace:"http"`
}

// loadConfig parses the config file (if any) and then command-line flags,
// with flags taking precedence, exactly as dcrlnd's own config loader
// does. The private view key is deliberately not a config field: it is
// read directly from the PRIVATE_VIEWKEY environment variable by main, so
// it never ends up in a config file or process listing.
func loadConfig() (*config, error) {
	cfg := config{
		LogDir:   "./logs",
		LogLevel: defaultLogLevel,
	}

	parser := flags.NewParser(&cfg, flags.Default)

	// A first pass, ignoring unknown flags, just to learn whether -C/
	// --configfile was given before the config file's own values (which
	// the real parse below will fold in) are known.
	preParser := flags.NewParser(&cfg, flags.Default|flags.IgnoreUnknown)
	if _, err := preParser.Parse(); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
