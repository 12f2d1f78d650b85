// Package provider turns cluster definitions into web3.Network clients.
package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/web3"
	"counter-chain/internal/web3/simulated"
	"counter-chain/internal/web3/solana"
)

// Cluster is one named network together with its definition.
type Cluster struct {
	Name       string
	Definition web3.ClusterDefinition
	Network    web3.Network
}

// Option customises registry construction.
type Option func(*options)

type options struct {
	observer  solana.Observer
	simulated []simulated.Option
	log       *slog.Logger
}

// WithObserver attaches an RPC observer to every solana client.
func WithObserver(o solana.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithSimulatedOptions appends options to every simulated ledger.
func WithSimulatedOptions(o ...simulated.Option) Option {
	return func(opts *options) { opts.simulated = append(opts.simulated, o...) }
}

// WithLogger sets the logger handed to simulated ledgers.
func WithLogger(l *slog.Logger) Option {
	return func(opts *options) { opts.log = l }
}

// Registry resolves named clusters. Clients are built on first use and
// cached until Close.
type Registry struct {
	defaultCluster string
	defs           map[string]web3.ClusterDefinition
	cfg            config.NetworkConfig
	opts           options

	mu       sync.Mutex
	networks map[string]web3.Network
}

// NewRegistry loads cluster definitions on top of the built-in ones and checks
// them. network.rpc_url overrides the endpoint of the selected cluster.
func NewRegistry(cfg config.NetworkConfig, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	fromFile, err := web3.LoadClusterDefinitions(cfg.ClusterConfig)
	if err != nil {
		return nil, err
	}
	defs := web3.DefaultClusters().Merge(fromFile)

	selected := strings.TrimSpace(cfg.Cluster)
	if selected == "" {
		selected = "devnet"
	}
	if rpcURL := strings.TrimSpace(cfg.RPCURL); rpcURL != "" {
		def, ok := defs.Clusters[selected]
		if !ok {
			def = web3.ClusterDefinition{Type: web3.ClusterTypeSolana, ExplorerCluster: "custom"}
		}
		if def.Type == web3.ClusterTypeSimulated {
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("cluster %s is simulated and takes no rpc_url", selected))
		}
		def.RPCURL = rpcURL
		defs.Clusters[selected] = def
	}
	if _, ok := defs.Clusters[selected]; !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("cluster %s is not defined", selected))
	}
	for name, def := range defs.Clusters {
		if _, err := clusterType(name, def); err != nil {
			return nil, err
		}
	}

	return &Registry{
		defaultCluster: selected,
		defs:           defs.Clusters,
		cfg:            cfg,
		opts:           o,
		networks:       make(map[string]web3.Network),
	}, nil
}

func clusterType(name string, def web3.ClusterDefinition) (string, error) {
	t := strings.ToLower(strings.TrimSpace(def.Type))
	switch t {
	case "":
		return web3.ClusterTypeSolana, nil
	case web3.ClusterTypeSolana, web3.ClusterTypeSimulated:
		return t, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("cluster %s uses unsupported type %s", name, def.Type))
	}
}

func newNetwork(name string, def web3.ClusterDefinition, cfg config.NetworkConfig, o options) (web3.Network, error) {
	kind, err := clusterType(name, def)
	if err != nil {
		return nil, err
	}
	if kind == web3.ClusterTypeSimulated {
		ledgerOpts := []simulated.Option{simulated.WithFallbackProgram(simulated.CounterProgram)}
		if cfg.Simulated.MinimumBalance > 0 {
			ledgerOpts = append(ledgerOpts, simulated.WithMinimumBalance(cfg.Simulated.MinimumBalance))
		}
		if cfg.Simulated.FaucetQuota > 0 {
			ledgerOpts = append(ledgerOpts, simulated.WithFaucetQuota(cfg.Simulated.FaucetQuota))
		}
		if o.log != nil {
			ledgerOpts = append(ledgerOpts, simulated.WithLogger(o.log))
		}
		ledgerOpts = append(ledgerOpts, o.simulated...)
		return simulated.NewLedger(ledgerOpts...), nil
	}

	client, err := solana.NewClient(solana.Config{
		Name:              name,
		RPCURL:            def.RPCURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		PollInterval:      time.Duration(cfg.PollInterval),
		MaxPollInterval:   time.Duration(cfg.MaxPollInterval),
		Observer:          o.observer,
	})
	if err != nil {
		return nil, fmt.Errorf("init cluster %s: %w", name, err)
	}
	return client, nil
}

// Default returns the cluster selected by configuration.
func (r *Registry) Default() (Cluster, error) {
	if r == nil {
		return Cluster{}, xerrors.New(xerrors.CodeInvalidArgument, "registry is not initialised")
	}
	return r.Cluster(r.defaultCluster)
}

// Cluster returns the cluster identified by name, building its client on the
// first call.
func (r *Registry) Cluster(name string) (Cluster, error) {
	if r == nil {
		return Cluster{}, xerrors.New(xerrors.CodeInvalidArgument, "registry is not initialised")
	}
	def, ok := r.defs[name]
	if !ok {
		return Cluster{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("cluster %s is not registered", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	network, ok := r.networks[name]
	if !ok {
		var err error
		network, err = newNetwork(name, def, r.cfg, r.opts)
		if err != nil {
			return Cluster{}, err
		}
		r.networks[name] = network
	}
	return Cluster{Name: name, Definition: def, Network: network}, nil
}

// Close releases every client built so far.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, network := range r.networks {
		if network != nil {
			network.Close()
		}
		delete(r.networks, name)
	}
}

// Clusters returns the defined cluster names.
func (r *Registry) Clusters() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
