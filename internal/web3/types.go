package web3

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Commitment is a durability tier a transaction must reach before it is acted on.
type Commitment string

const (
	// CommitmentProcessed means the transaction has been seen by the queried node.
	CommitmentProcessed Commitment = "processed"
	// CommitmentConfirmed means a supermajority has voted on the block.
	CommitmentConfirmed Commitment = "confirmed"
	// CommitmentFinalized means the block is rooted.
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment accepts the three commitment names, case-insensitively.
func ParseCommitment(s string) (Commitment, error) {
	switch c := Commitment(strings.ToLower(strings.TrimSpace(s))); c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c, nil
	default:
		return "", fmt.Errorf("unknown commitment %q", s)
	}
}

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether reaching c also reaches target.
func (c Commitment) Satisfies(target Commitment) bool {
	return c.rank() > 0 && c.rank() >= target.rank()
}

// SubmitOptions is the submission policy handed to the network.
type SubmitOptions struct {
	// Commitment is the durability the call blocks for.
	Commitment Commitment
	// SkipPreflight bypasses transaction simulation before broadcast. When
	// false, a failing transaction is reported with CodePreflight instead of
	// CodeSubmission.
	SkipPreflight bool
	// PreflightCommitment is the bank state simulation runs against.
	PreflightCommitment Commitment
}

// Receipt identifies a transaction that reached the requested durability.
type Receipt struct {
	Signature  solana.Signature
	Slot       uint64
	Commitment Commitment
}

// Blockhash is a recent blockhash plus the last block height at which a
// transaction referencing it can still land.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// OperationKind names the two operations the workflow batches.
type OperationKind string

const (
	OperationCreateAccount     OperationKind = "create-account"
	OperationInvokeInstruction OperationKind = "invoke-instruction"
)

// Operation is one instruction of a transaction together with its kind.
type Operation struct {
	Kind        OperationKind
	Instruction solana.Instruction
}

// RequiredSigners lists the accounts the instruction marks as signers, in order.
func (o Operation) RequiredSigners() []solana.PublicKey {
	if o.Instruction == nil {
		return nil
	}
	var signers []solana.PublicKey
	for _, meta := range o.Instruction.Accounts() {
		if meta != nil && meta.IsSigner {
			signers = append(signers, meta.PublicKey)
		}
	}
	return signers
}

//go:generate mockgen -destination=mocks/network.go -package=mocks counter-chain/internal/web3 Network

// Network is the ledger collaborator. Every method blocks until the network
// answers; implementations own any internal polling or backoff.
type Network interface {
	// RequestCredit asks the faucet for amount base units and returns only once
	// the credit is visible at the confirmed level.
	RequestCredit(ctx context.Context, address solana.PublicKey, amount uint64) error
	// MinimumExemptBalance returns the balance an account of space bytes needs
	// to be exempt from rent collection.
	MinimumExemptBalance(ctx context.Context, space uint64) (uint64, error)
	// LatestBlockhash returns a blockhash to sign a transaction against.
	LatestBlockhash(ctx context.Context) (Blockhash, error)
	// SubmitAndConfirm broadcasts a fully signed transaction and blocks until
	// opts.Commitment is reached or the transaction definitively fails.
	SubmitAndConfirm(ctx context.Context, tx *solana.Transaction, lastValidBlockHeight uint64, opts SubmitOptions) (Receipt, error)
	// FetchAccountBytes returns the raw data stored at address, or an error
	// matching ErrAccountNotFound.
	FetchAccountBytes(ctx context.Context, address solana.PublicKey) ([]byte, error)
	Close()
}
