// Package simulated provides an in-memory web3.Network for offline dry runs
// and tests. The ledger verifies signatures and blockhashes, executes the
// system program's create-account and transfer instructions, dispatches other
// programs to registered handlers and applies each transaction atomically.
package simulated
