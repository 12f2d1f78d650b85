package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/identity"
	"counter-chain/internal/web3"
	"counter-chain/pkg/logger"
)

// CodeMissingSigner marks a transaction whose operations require a signature
// no supplied identity can produce.
const CodeMissingSigner xerrors.Code = "MISSING_SIGNER"

// ErrMissingSigner matches any missing signer failure via errors.Is.
var ErrMissingSigner = xerrors.New(CodeMissingSigner, "")

func init() {
	xerrors.Register(CodeMissingSigner, xerrors.Attributes{
		Message:  "required signer missing",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Orchestrator assembles operations into one transaction and submits it.
type Orchestrator struct {
	network web3.Network
	log     *slog.Logger
}

// NewOrchestrator wraps network. A nil logger uses the package default.
func NewOrchestrator(network web3.Network, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = logger.Named("orchestrator")
	}
	return &Orchestrator{network: network, log: log}
}

// Submit concatenates ops in order, signs with every identity in signers and
// blocks until opts.Commitment is reached or the transaction fails.
// signers[0] pays the fees. Every required signer is checked before anything
// is sent to the network, and network errors are returned unmodified.
func (o *Orchestrator) Submit(ctx context.Context, ops []web3.Operation, signers []*identity.Identity, opts web3.SubmitOptions) (web3.Receipt, error) {
	if len(ops) == 0 {
		return web3.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, "no operations to submit")
	}

	keyring := identity.NewKeyring(signers...)
	payer := keyring.FeePayer()
	if payer == nil {
		return web3.Receipt{}, xerrors.New(CodeMissingSigner, "no fee payer supplied")
	}

	instructions := make([]solana.Instruction, 0, len(ops))
	for i, op := range ops {
		if op.Instruction == nil {
			return web3.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("operation %d (%s) has no instruction", i, op.Kind))
		}
		for _, signer := range op.RequiredSigners() {
			if !keyring.Has(signer) {
				return web3.Receipt{}, xerrors.New(CodeMissingSigner,
					fmt.Sprintf("operation %d (%s) requires a signature from %s", i, op.Kind, signer),
					xerrors.WithMetadata("address", signer.String()))
			}
		}
		instructions = append(instructions, op.Instruction)
	}

	blockhash, err := o.network.LatestBlockhash(ctx)
	if err != nil {
		return web3.Receipt{}, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash.Hash, solana.TransactionPayer(payer.Address()))
	if err != nil {
		return web3.Receipt{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "assemble transaction")
	}
	if _, err := tx.Sign(keyring.PrivateKey); err != nil {
		return web3.Receipt{}, xerrors.Wrap(CodeMissingSigner, err, "sign transaction")
	}

	o.log.Debug("submitting transaction",
		"signature", tx.Signatures[0].String(),
		"operations", len(ops),
		"signers", keyring.Len(),
		"commitment", string(opts.Commitment),
		"skip_preflight", opts.SkipPreflight)

	return o.network.SubmitAndConfirm(ctx, tx, blockhash.LastValidBlockHeight, opts)
}
