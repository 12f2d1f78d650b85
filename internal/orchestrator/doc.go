// Package orchestrator drives a counter run: it funds a fresh fee payer,
// submits account creation and the increment instruction as one atomic
// transaction, waits for confirmation and reads the counter back.
package orchestrator
