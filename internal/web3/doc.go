// Package web3 houses ledger connectivity for the counter workflow: the
// Network collaborator contract consumed by the orchestrator, the operation
// and receipt types exchanged with it, cluster definitions and the error codes
// shared by every Network implementation. Concrete clients live in the solana
// (JSON-RPC) and simulated (in-memory) subpackages; provider wires them from
// configuration.
package web3
