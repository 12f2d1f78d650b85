package simulated

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/hdevalence/ed25519consensus"

	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/web3"
	"counter-chain/pkg/logger"
)

const (
	// DefaultBlockhashValidity matches the number of blocks a cluster accepts
	// a recent blockhash for.
	DefaultBlockhashValidity = 150
	// DefaultFeePerSignature is charged to the fee payer of every landed transaction.
	DefaultFeePerSignature = 5000

	accountStorageOverhead = 128
	lamportsPerByte        = 6960
)

type account struct {
	lamports uint64
	owner    solana.PublicKey
	data     []byte
}

func (a *account) clone() *account {
	return &account{lamports: a.lamports, owner: a.owner, data: append([]byte(nil), a.data...)}
}

type state struct {
	accounts map[solana.PublicKey]*account
}

func (s *state) debit(address solana.PublicKey, lamports uint64) error {
	acct, ok := s.accounts[address]
	if !ok || acct.lamports < lamports {
		have := uint64(0)
		if ok {
			have = acct.lamports
		}
		return fmt.Errorf("insufficient lamports in %s: have %d, need %d", address, have, lamports)
	}
	acct.lamports -= lamports
	return nil
}

func (s *state) credit(address solana.PublicKey, lamports uint64) {
	acct, ok := s.accounts[address]
	if !ok {
		acct = &account{owner: solana.SystemProgramID}
		s.accounts[address] = acct
	}
	acct.lamports += lamports
}

type landed struct {
	slot uint64
	err  error
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithMinimumBalance fixes the rent-exempt minimum for every account size.
func WithMinimumBalance(lamports uint64) Option {
	return func(l *Ledger) {
		fixed := lamports
		l.minimumBalance = func(uint64) uint64 { return fixed }
	}
}

// WithFaucetQuota caps the total lamports one address may receive from the
// faucet. Zero disables the cap.
func WithFaucetQuota(lamports uint64) Option {
	return func(l *Ledger) { l.faucetQuota = lamports }
}

// WithFeePerSignature overrides the transaction fee.
func WithFeePerSignature(lamports uint64) Option {
	return func(l *Ledger) { l.feePerSignature = lamports }
}

// WithFallbackProgram handles instructions addressed to any program without
// a registered handler.
func WithFallbackProgram(handler ProgramHandler) Option {
	return func(l *Ledger) { l.fallback = handler }
}

// WithLogger replaces the component logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// Ledger is an in-memory, single-node network. Every landed transaction
// produces one block and is immediately final.
type Ledger struct {
	mu              sync.Mutex
	state           state
	height          uint64
	blockhashes     map[solana.Hash]uint64
	signatures      map[solana.Signature]landed
	credited        map[solana.PublicKey]uint64
	programs        map[solana.PublicKey]ProgramHandler
	fallback        ProgramHandler
	minimumBalance  func(space uint64) uint64
	faucetQuota     uint64
	feePerSignature uint64
	log             *slog.Logger
}

// NewLedger returns an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		state:           state{accounts: make(map[solana.PublicKey]*account)},
		height:          1,
		blockhashes:     make(map[solana.Hash]uint64),
		signatures:      make(map[solana.Signature]landed),
		credited:        make(map[solana.PublicKey]uint64),
		programs:        make(map[solana.PublicKey]ProgramHandler),
		feePerSignature: DefaultFeePerSignature,
		minimumBalance: func(space uint64) uint64 {
			return (accountStorageOverhead + space) * lamportsPerByte
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.log == nil {
		l.log = logger.Named("simulated")
	}
	return l
}

// RegisterProgram routes instructions addressed to id to handler.
func (l *Ledger) RegisterProgram(id solana.PublicKey, handler ProgramHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[id] = handler
}

// SetAccount seeds an account, replacing any existing one.
func (l *Ledger) SetAccount(address, owner solana.PublicKey, lamports uint64, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.accounts[address] = &account{lamports: lamports, owner: owner, data: append([]byte(nil), data...)}
}

// Balance returns the lamports held by address.
func (l *Ledger) Balance(address solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.state.accounts[address]; ok {
		return acct.lamports
	}
	return 0
}

// Owner returns the owning program of address.
func (l *Ledger) Owner(address solana.PublicKey) (solana.PublicKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.state.accounts[address]
	if !ok {
		return solana.PublicKey{}, false
	}
	return acct.owner, true
}

// Advance produces n empty blocks, ageing every issued blockhash.
func (l *Ledger) Advance(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
}

// Close is a no-op.
func (l *Ledger) Close() {}

// RequestCredit credits address from the faucet. Credits are final immediately.
func (l *Ledger) RequestCredit(ctx context.Context, address solana.PublicKey, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "airdrop aborted")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.faucetQuota > 0 && l.credited[address]+amount > l.faucetQuota {
		return xerrors.New(web3.CodeFunding,
			fmt.Sprintf("airdrop of %d lamports exceeds faucet quota of %d", amount, l.faucetQuota),
			xerrors.WithMetadata("address", address.String()))
	}
	l.credited[address] += amount
	l.state.credit(address, amount)
	l.height++
	return nil
}

// MinimumExemptBalance returns the rent-exempt minimum for space bytes.
func (l *Ledger) MinimumExemptBalance(ctx context.Context, space uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeTimeout, err, "rent query aborted")
	}
	return l.minimumBalance(space), nil
}

// LatestBlockhash issues a blockhash valid for DefaultBlockhashValidity blocks.
func (l *Ledger) LatestBlockhash(ctx context.Context) (web3.Blockhash, error) {
	if err := ctx.Err(); err != nil {
		return web3.Blockhash{}, xerrors.Wrap(xerrors.CodeTimeout, err, "blockhash query aborted")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], l.height)
	hash := solana.Hash(sha256.Sum256(seed[:]))
	l.blockhashes[hash] = l.height
	return web3.Blockhash{Hash: hash, LastValidBlockHeight: l.height + DefaultBlockhashValidity}, nil
}

// SubmitAndConfirm validates and applies tx. With preflight enabled, a failing
// transaction is rejected before it lands and nothing changes. With preflight
// skipped it lands, the fee is charged and its instructions are rolled back.
func (l *Ledger) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction, _ uint64, opts web3.SubmitOptions) (web3.Receipt, error) {
	if tx == nil {
		return web3.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, "transaction is nil")
	}
	if err := ctx.Err(); err != nil {
		return web3.Receipt{}, xerrors.Wrap(xerrors.CodeTimeout, err, "submission aborted")
	}

	rejected := web3.CodeSubmission
	if !opts.SkipPreflight {
		rejected = web3.CodePreflight
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.sanitize(tx); err != nil {
		return web3.Receipt{}, xerrors.Wrap(rejected, err, "transaction rejected")
	}
	sig := tx.Signatures[0]
	meta := xerrors.WithMetadata("signature", sig.String())

	fee := l.feePerSignature * uint64(len(tx.Signatures))
	payer := tx.Message.AccountKeys[0]

	charged := l.fork()
	if err := charged.debit(payer, fee); err != nil {
		return web3.Receipt{}, xerrors.Wrap(rejected, err, "transaction rejected", meta)
	}
	next := charged.clone()
	execErr := l.execute(&next, tx)

	if execErr != nil && !opts.SkipPreflight {
		return web3.Receipt{}, xerrors.Wrap(web3.CodePreflight, execErr, "simulation failed", meta)
	}

	l.height++
	slot := l.height
	if execErr != nil {
		l.state = charged
		l.signatures[sig] = landed{slot: slot, err: execErr}
		l.log.Debug("transaction failed", "signature", sig.String(), "slot", slot, "error", execErr)
		return web3.Receipt{}, xerrors.Wrap(web3.CodeSubmission, execErr, "transaction failed", meta)
	}

	l.state = next
	l.signatures[sig] = landed{slot: slot}
	l.log.Debug("transaction landed", "signature", sig.String(), "slot", slot,
		"instructions", len(tx.Message.Instructions))
	return web3.Receipt{Signature: sig, Slot: slot, Commitment: web3.CommitmentFinalized}, nil
}

// FetchAccountBytes returns a copy of the data stored at address.
func (l *Ledger) FetchAccountBytes(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "account query aborted")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.state.accounts[address]
	if !ok {
		return nil, xerrors.New(web3.CodeAccountNotFound, "", xerrors.WithMetadata("address", address.String()))
	}
	return append([]byte{}, acct.data...), nil
}

// sanitize performs the checks a node runs before executing anything.
func (l *Ledger) sanitize(tx *solana.Transaction) error {
	msg := tx.Message
	required := int(msg.Header.NumRequiredSignatures)
	if required == 0 || len(msg.AccountKeys) < required {
		return fmt.Errorf("malformed message header")
	}
	if len(tx.Signatures) != required {
		return fmt.Errorf("expected %d signatures, got %d", required, len(tx.Signatures))
	}

	issued, ok := l.blockhashes[msg.RecentBlockhash]
	if !ok {
		return fmt.Errorf("blockhash not found")
	}
	if l.height > issued+DefaultBlockhashValidity {
		return fmt.Errorf("blockhash expired")
	}
	if _, seen := l.signatures[tx.Signatures[0]]; seen {
		return fmt.Errorf("this transaction has already been processed")
	}

	content, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	for i := 0; i < required; i++ {
		key := msg.AccountKeys[i]
		if !ed25519consensus.Verify(ed25519.PublicKey(key[:]), content, tx.Signatures[i][:]) {
			return fmt.Errorf("signature verification failed for %s", key)
		}
	}
	return nil
}

func (l *Ledger) fork() state {
	return l.state.clone()
}

func (s state) clone() state {
	accounts := make(map[solana.PublicKey]*account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v.clone()
	}
	return state{accounts: accounts}
}

// execute runs every instruction against st. st is discarded on error.
func (l *Ledger) execute(st *state, tx *solana.Transaction) error {
	msg := tx.Message
	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) {
			return fmt.Errorf("instruction %d: program index out of range", i)
		}
		program := msg.AccountKeys[ix.ProgramIDIndex]

		views := make([]*AccountView, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			if int(idx) >= len(msg.AccountKeys) {
				return fmt.Errorf("instruction %d: account index out of range", i)
			}
			views = append(views, l.view(st, msg, int(idx)))
		}

		var err error
		if program.Equals(solana.SystemProgramID) {
			err = l.executeSystem(st, views, ix.Data)
		} else {
			err = l.invoke(st, program, views, ix.Data)
		}
		if err != nil {
			return fmt.Errorf("Error processing Instruction %d: %w", i, err)
		}
	}
	return nil
}

func (l *Ledger) view(st *state, msg solana.Message, idx int) *AccountView {
	key := msg.AccountKeys[idx]
	v := &AccountView{
		Address:    key,
		Owner:      solana.SystemProgramID,
		IsSigner:   idx < int(msg.Header.NumRequiredSignatures),
		IsWritable: isWritable(msg, idx),
	}
	if acct, ok := st.accounts[key]; ok {
		v.Owner = acct.owner
		v.Lamports = acct.lamports
		v.Data = append([]byte(nil), acct.data...)
	}
	return v
}

func isWritable(msg solana.Message, idx int) bool {
	h := msg.Header
	signed := int(h.NumRequiredSignatures)
	if idx < signed {
		return idx < signed-int(h.NumReadonlySignedAccounts)
	}
	return idx < len(msg.AccountKeys)-int(h.NumReadonlyUnsignedAccounts)
}

func (l *Ledger) invoke(st *state, program solana.PublicKey, views []*AccountView, data []byte) error {
	handler, ok := l.programs[program]
	if !ok {
		handler = l.fallback
	}
	if handler == nil {
		return fmt.Errorf("program %s not found", program)
	}

	before := make([][]byte, len(views))
	for i, v := range views {
		before[i] = append([]byte(nil), v.Data...)
	}
	if err := handler(program, views, data); err != nil {
		return err
	}

	for i, v := range views {
		if string(v.Data) == string(before[i]) {
			continue
		}
		if !v.IsWritable || !v.Owner.Equals(program) {
			return fmt.Errorf("program %s modified data of account %s it does not own", program, v.Address)
		}
		if len(v.Data) != len(before[i]) {
			return fmt.Errorf("program %s changed the size of account %s", program, v.Address)
		}
		acct, ok := st.accounts[v.Address]
		if !ok {
			return fmt.Errorf("account %s does not exist", v.Address)
		}
		acct.data = append(acct.data[:0], v.Data...)
	}
	return nil
}
