package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Cluster types understood by the provider registry.
const (
	ClusterTypeSolana    = "solana"
	ClusterTypeSimulated = "simulated"
)

// ClusterDefinitions models the structure of configs/clusters.yaml.
type ClusterDefinitions struct {
	Clusters map[string]ClusterDefinition `yaml:"clusters"`
}

// ClusterDefinition describes a single cluster endpoint.
type ClusterDefinition struct {
	Type            string `yaml:"type"`
	RPCURL          string `yaml:"rpc_url"`
	ExplorerCluster string `yaml:"explorer_cluster"`
	Description     string `yaml:"description"`
}

// LoadClusterDefinitions parses the YAML file listing known clusters. An empty
// path yields an empty set.
func LoadClusterDefinitions(path string) (ClusterDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ClusterDefinitions{Clusters: map[string]ClusterDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ClusterDefinitions{}, fmt.Errorf("read cluster definitions: %w", err)
	}

	var defs ClusterDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ClusterDefinitions{}, fmt.Errorf("parse cluster definitions: %w", err)
	}
	if defs.Clusters == nil {
		defs.Clusters = map[string]ClusterDefinition{}
	}
	return defs, nil
}

// DefaultClusters returns the public clusters plus a local validator and the
// offline simulated cluster.
func DefaultClusters() ClusterDefinitions {
	return ClusterDefinitions{Clusters: map[string]ClusterDefinition{
		"devnet": {
			Type:            ClusterTypeSolana,
			RPCURL:          "https://api.devnet.solana.com",
			ExplorerCluster: "devnet",
			Description:     "public development cluster with a faucet",
		},
		"testnet": {
			Type:            ClusterTypeSolana,
			RPCURL:          "https://api.testnet.solana.com",
			ExplorerCluster: "testnet",
			Description:     "public test cluster",
		},
		"mainnet-beta": {
			Type:            ClusterTypeSolana,
			RPCURL:          "https://api.mainnet-beta.solana.com",
			ExplorerCluster: "mainnet-beta",
			Description:     "production cluster, airdrops are refused",
		},
		"localnet": {
			Type:            ClusterTypeSolana,
			RPCURL:          "http://127.0.0.1:8899",
			ExplorerCluster: "custom",
			Description:     "solana-test-validator on this host",
		},
		"simulated": {
			Type:            ClusterTypeSimulated,
			ExplorerCluster: "custom",
			Description:     "in-process ledger running the counter program",
		},
	}}
}

// Merge overlays other onto d, replacing clusters with the same name.
func (d ClusterDefinitions) Merge(other ClusterDefinitions) ClusterDefinitions {
	out := ClusterDefinitions{Clusters: make(map[string]ClusterDefinition, len(d.Clusters)+len(other.Clusters))}
	for name, def := range d.Clusters {
		out.Clusters[name] = def
	}
	for name, def := range other.Clusters {
		out.Clusters[name] = def
	}
	return out
}
