package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/web3/simulated"
	"counter-chain/internal/web3/solana"
)

func TestRegistryDefaults(t *testing.T) {
	reg, err := NewRegistry(config.NetworkConfig{})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	require.Equal(t, []string{"devnet", "localnet", "mainnet-beta", "simulated", "testnet"}, reg.Clusters())
	require.Zero(t, builtClients(reg))

	def, err := reg.Default()
	require.NoError(t, err)
	require.Equal(t, "devnet", def.Name)
	require.IsType(t, &solana.Client{}, def.Network)
	require.Equal(t, 1, builtClients(reg))

	sim, err := reg.Cluster("simulated")
	require.NoError(t, err)
	require.IsType(t, &simulated.Ledger{}, sim.Network)
	require.Equal(t, 2, builtClients(reg))

	_, err = reg.Cluster("nowhere")
	require.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))
}

func TestRegistryBuildsOnlySelectedCluster(t *testing.T) {
	reg, err := NewRegistry(config.NetworkConfig{Cluster: "simulated"})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	first, err := reg.Default()
	require.NoError(t, err)
	second, err := reg.Default()
	require.NoError(t, err)
	require.Same(t, first.Network, second.Network)
	require.Equal(t, 1, builtClients(reg))

	reg.Close()
	require.Zero(t, builtClients(reg))
}

func builtClients(r *Registry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.networks)
}

func TestRegistryFileAndOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`clusters:
  private:
    type: solana
    rpc_url: https://private.example.org
    explorer_cluster: custom
`), 0o600))

	reg, err := NewRegistry(config.NetworkConfig{
		ClusterConfig: path,
		Cluster:       "private",
		RPCURL:        "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	def, err := reg.Default()
	require.NoError(t, err)
	require.Equal(t, "private", def.Name)
	require.Equal(t, "http://127.0.0.1:9000", def.Definition.RPCURL)
}

func TestRegistryRejectsUnknownCluster(t *testing.T) {
	_, err := NewRegistry(config.NetworkConfig{Cluster: "nowhere"})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = NewRegistry(config.NetworkConfig{Cluster: "simulated", RPCURL: "http://127.0.0.1:8899"})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestRegistryRejectsUnsupportedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clusters:\n  evm:\n    type: ethereum\n    rpc_url: http://x\n"), 0o600))

	_, err := NewRegistry(config.NetworkConfig{ClusterConfig: path})
	require.Error(t, err)
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}
