package xmrgateway

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/xmrgateway/xmrgateway/callbackqueue"
	"github.com/xmrgateway/xmrgateway/chainrpc"
	"github.com/xmrgateway/xmrgateway/chainrpc/jsonrpc"
	"github.com/xmrgateway/xmrgateway/moneroutil"
	"github.com/xmrgateway/xmrgateway/monitoring"
	"github.com/xmrgateway/xmrgateway/pubsub"
	"github.com/xmrgateway/xmrgateway/storage"
	"github.com/xmrgateway/xmrgateway/subaddr"
)

// DefaultScanInterval is the tick period used if the builder isn't given
// one explicitly (spec §6: scan_interval_ms default 1000).
const DefaultScanInterval = time.Second

// DefaultRPCTimeout and DefaultConnectTimeout are the daemon JSON-RPC
// client timeouts used if the builder's DaemonURL isn't given overrides
// (spec §6: rpc_timeout_s 30, connection_timeout_s 20).
const (
	DefaultRPCTimeout     = 30 * time.Second
	DefaultConnectTimeout = 20 * time.Second
)

// reorgWindowSize bounds how many recent (height, hash) pairs the scanner
// keeps cached for the reorg check of spec §4.E.2.
const reorgWindowSize = 100

// Config is the fully-resolved configuration a Gateway is built from. It is
// assembled by Builder rather than constructed directly, so required
// fields (view key, primary address, storage) can't be forgotten.
type Config struct {
	viewKey         moneroutil.PrivateViewKey
	primarySpendKey moneroutil.PublicKey
	network         moneroutil.Network
	accountIndex    uint32

	store  storage.Storage
	daemon chainrpc.DaemonClient

	scanInterval  time.Duration
	initialHeight *uint64
	seed          *uint64
	deleteExpired bool

	callback callbackqueue.Config
	metrics  *monitoring.Metrics
}

// Builder incrementally assembles a Config, in the style of a builder
// pattern: required inputs up front, everything else defaulted and
// overridable via chained setters, finished off by Build.
type Builder struct {
	cfg Config
	err error
}

// NewBuilder begins building a Gateway configuration. viewKeyHex is the
// hex-encoded private view key (normally read from the PRIVATE_VIEWKEY
// environment variable by the caller, never accepted on a command line —
// see cmd/xmrgatewayd). primaryAddress is the merchant's primary Monero
// address (not a subaddress); store is the Storage backend to persist
// invoices, output keys, and scan height to.
func NewBuilder(viewKeyHex, primaryAddress string, store storage.Storage) *Builder {
	b := &Builder{
		cfg: Config{
			store:         store,
			scanInterval:  DefaultScanInterval,
			deleteExpired: true,
			callback:      defaultCallbackConfig(),
		},
	}

	viewKey, err := parseViewKey(viewKeyHex)
	if err != nil {
		b.err = err
		return b
	}
	b.cfg.viewKey = viewKey

	addr, err := moneroutil.DecodeAddress(primaryAddress)
	if err != nil {
		b.err = fmt.Errorf("xmrgateway: invalid primary address: %w", err)
		return b
	}
	if addr.IsSubaddress {
		b.err = fmt.Errorf("xmrgateway: primary address must not be a subaddress")
		return b
	}
	b.cfg.primarySpendKey = addr.Spend
	b.cfg.network = addr.Network

	return b
}

func defaultCallbackConfig() callbackqueue.Config {
	return callbackqueue.Config{
		QueueSize: callbackqueue.DefaultQueueSize,
		Workers:   4,
		Policy:    callbackqueue.DefaultPolicy(),
	}
}

func parseViewKey(hexKey string) (moneroutil.PrivateViewKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return moneroutil.PrivateViewKey{}, fmt.Errorf("xmrgateway: invalid view key: %w", err)
	}
	if len(raw) != moneroutil.KeySize {
		return moneroutil.PrivateViewKey{}, fmt.Errorf(
			"xmrgateway: view key must be %d bytes, got %d", moneroutil.KeySize, len(raw))
	}
	var k moneroutil.PrivateViewKey
	copy(k[:], raw)
	return k, nil
}

// DaemonURL points the gateway at a monerod JSON-RPC endpoint. Mutually
// exclusive with DaemonClient; whichever is called last wins.
func (b *Builder) DaemonURL(url string, opts ...jsonrpc.Option) *Builder {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	defaults := jsonrpc.WithHTTPClient(&http.Client{
		Timeout:   DefaultRPCTimeout,
		Transport: transport,
	})
	b.cfg.daemon = jsonrpc.New(url, append([]jsonrpc.Option{defaults}, opts...)...)
	return b
}

// DaemonClient injects a DaemonClient directly, bypassing jsonrpc entirely.
// Intended for tests (chainrpc.FakeDaemonClient) and for callers embedding
// the gateway against an already-constructed client.
func (b *Builder) DaemonClient(c chainrpc.DaemonClient) *Builder {
	b.cfg.daemon = c
	return b
}

// ScanInterval overrides DefaultScanInterval.
func (b *Builder) ScanInterval(d time.Duration) *Builder {
	b.cfg.scanInterval = d
	return b
}

// AccountIndex sets the fixed major (account) index subaddresses are
// derived under. Defaults to 0.
func (b *Builder) AccountIndex(i uint32) *Builder {
	b.cfg.accountIndex = i
	return b
}

// InitialHeight sets the wallet restore height used as the scanner's
// starting point when Storage has no persisted height yet (spec §4.H).
func (b *Builder) InitialHeight(h uint64) *Builder {
	b.cfg.initialHeight = &h
	return b
}

// Seed fixes the subaddress allocator's RNG for deterministic tests (spec
// §6's seed option).
func (b *Builder) Seed(s uint64) *Builder {
	b.cfg.seed = &s
	return b
}

// DeleteExpired controls whether expired-and-unpaid invoices are removed
// automatically by the scanner (spec §6 database.delete_expired, default
// true).
func (b *Builder) DeleteExpired(enabled bool) *Builder {
	b.cfg.deleteExpired = enabled
	return b
}

// Callback overrides the callback queue's configuration (spec §6's
// callback section). Any zero-valued field is defaulted.
func (b *Builder) Callback(cfg callbackqueue.Config) *Builder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = callbackqueue.DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Policy == (callbackqueue.Policy{}) {
		cfg.Policy = callbackqueue.DefaultPolicy()
	}
	b.cfg.callback = cfg
	return b
}

// Metrics registers a Prometheus metrics set with the gateway (spec's
// domain-stack monitoring wiring). Optional; with none configured, the
// scanner simply skips every metrics update.
func (b *Builder) Metrics(m *monitoring.Metrics) *Builder {
	b.cfg.metrics = m
	return b
}

// Build validates and finalizes the configuration into a ready-to-Run
// Gateway. It is a configuration-time (fatal, non-retriable) error for the
// view key, address, or storage path to be invalid — failures here are
// meant to be caught at process startup, not during a scan tick.
func (b *Builder) Build() (*Gateway, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.cfg.store == nil {
		return nil, fmt.Errorf("xmrgateway: storage is required")
	}
	if b.cfg.daemon == nil {
		return nil, fmt.Errorf("xmrgateway: a daemon client is required (DaemonURL or DaemonClient)")
	}
	if b.cfg.scanInterval <= 0 {
		b.cfg.scanInterval = DefaultScanInterval
	}

	gw := &Gateway{
		cfg:         b.cfg,
		alloc:       subaddr.New(b.cfg.accountIndex, b.cfg.seed),
		bus:         pubsub.New(pubsub.DefaultBufferSize),
		reg:         newRegistry(b.cfg.store),
		metrics:     b.cfg.metrics,
		status:      StatusStopped,
		headerCache: make(map[uint64][32]byte),
		txpoolTx:    make(map[[32]byte][32]byte),
	}

	return gw, nil
}
