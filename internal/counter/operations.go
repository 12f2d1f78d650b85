package counter

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"counter-chain/internal/web3"
)

const (
	// AccountSpace is the size of a counter account.
	AccountSpace uint64 = ValueSize
	// OpIncrement is the only opcode the program understands.
	OpIncrement byte = 0x00
)

// BalanceQuerier is the slice of web3.Network the provisioner needs.
type BalanceQuerier interface {
	MinimumExemptBalance(ctx context.Context, space uint64) (uint64, error)
}

// BuildCreateOperation funds newAccount with the rent-exempt minimum for
// space bytes, taken from payer, and assigns it to program. Both payer and
// newAccount must sign. The space is not checked against what the program
// expects.
func BuildCreateOperation(ctx context.Context, balances BalanceQuerier, payer, newAccount, program solana.PublicKey, space uint64) (web3.Operation, error) {
	lamports, err := balances.MinimumExemptBalance(ctx, space)
	if err != nil {
		return web3.Operation{}, err
	}
	ix := system.NewCreateAccountInstruction(lamports, space, program, payer, newAccount).Build()
	return web3.Operation{Kind: web3.OperationCreateAccount, Instruction: ix}, nil
}

// BuildInstruction encodes a zero-argument opcode addressed to program with
// target as its only, writable, non-signing account.
func BuildInstruction(program, target solana.PublicKey, opcode byte) web3.Operation {
	ix := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(target, true, false),
	}, []byte{opcode})
	return web3.Operation{Kind: web3.OperationInvokeInstruction, Instruction: ix}
}

// Describe renders an operation for logs.
func Describe(op web3.Operation) string {
	if op.Instruction == nil {
		return string(op.Kind)
	}
	return fmt.Sprintf("%s program=%s accounts=%d", op.Kind, op.Instruction.ProgramID(), len(op.Instruction.Accounts()))
}
