package simulated

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

// AccountView is the state of one instruction account as seen by a program.
// A program may only change Data of writable accounts it owns.
type AccountView struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	IsWritable bool
	IsSigner   bool
}

// ProgramHandler executes one instruction addressed to program.
type ProgramHandler func(program solana.PublicKey, accounts []*AccountView, data []byte) error

// CounterProgram models the deployed counter program: opcode 0 increments the
// little-endian u64 held in the first writable account.
func CounterProgram(program solana.PublicKey, accounts []*AccountView, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("invalid instruction data")
	}
	if data[0] != 0 {
		return fmt.Errorf("unknown opcode %d", data[0])
	}

	var target *AccountView
	for _, acct := range accounts {
		if acct.IsWritable {
			target = acct
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no writable account supplied")
	}
	if !target.Owner.Equals(program) {
		return fmt.Errorf("account %s is not owned by program %s", target.Address, program)
	}
	if len(target.Data) < 8 {
		return fmt.Errorf("account %s holds %d bytes, need 8", target.Address, len(target.Data))
	}

	var value uint64
	if err := borsh.Deserialize(&value, target.Data[:8]); err != nil {
		return fmt.Errorf("decode counter: %w", err)
	}
	encoded, err := borsh.Serialize(value + 1)
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	copy(target.Data[:8], encoded)
	return nil
}

const (
	systemCreateAccount uint32 = 0
	systemTransfer      uint32 = 2
)

type createAccountArgs struct {
	Instruction uint32
	Lamports    uint64
	Space       uint64
	Owner       [32]byte
}

type transferArgs struct {
	Instruction uint32
	Lamports    uint64
}

// executeSystem applies the subset of the system program the workflow uses.
func (l *Ledger) executeSystem(st *state, accounts []*AccountView, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("invalid system instruction data")
	}
	var index uint32
	if err := borsh.Deserialize(&index, data[:4]); err != nil {
		return err
	}

	switch index {
	case systemCreateAccount:
		var args createAccountArgs
		if err := borsh.Deserialize(&args, data); err != nil {
			return fmt.Errorf("decode create account: %w", err)
		}
		if len(accounts) < 2 {
			return fmt.Errorf("create account needs 2 accounts, got %d", len(accounts))
		}
		from, to := accounts[0], accounts[1]
		if !from.IsSigner || !to.IsSigner {
			return fmt.Errorf("create account: missing required signature")
		}
		if existing, ok := st.accounts[to.Address]; ok && (existing.lamports > 0 || len(existing.data) > 0) {
			return fmt.Errorf("Allocate: account Address { address: %s, base: None } already in use", to.Address)
		}
		if min := l.minimumBalance(args.Space); args.Lamports < min {
			return fmt.Errorf("insufficient funds for rent: account %s needs %d lamports, got %d", to.Address, min, args.Lamports)
		}
		if err := st.debit(from.Address, args.Lamports); err != nil {
			return err
		}
		st.accounts[to.Address] = &account{
			lamports: args.Lamports,
			owner:    solana.PublicKeyFromBytes(args.Owner[:]),
			data:     make([]byte, args.Space),
		}
		return nil
	case systemTransfer:
		var args transferArgs
		if err := borsh.Deserialize(&args, data); err != nil {
			return fmt.Errorf("decode transfer: %w", err)
		}
		if len(accounts) < 2 {
			return fmt.Errorf("transfer needs 2 accounts, got %d", len(accounts))
		}
		if !accounts[0].IsSigner {
			return fmt.Errorf("transfer: missing required signature")
		}
		if err := st.debit(accounts[0].Address, args.Lamports); err != nil {
			return err
		}
		st.credit(accounts[1].Address, args.Lamports)
		return nil
	default:
		return fmt.Errorf("unsupported system instruction %d", index)
	}
}
