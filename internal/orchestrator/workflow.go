package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"counter-chain/internal/counter"
	"counter-chain/internal/identity"
	"counter-chain/internal/web3"
	"counter-chain/pkg/logger"
)

// State is a step of the run state machine.
type State string

const (
	StateInit      State = "init"
	StateFunded    State = "funded"
	StateSubmitted State = "submitted"
	StateConfirmed State = "confirmed"
	StateRead      State = "read"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Transition is published on every state change of a run.
type Transition struct {
	RunID string
	From  State
	To    State
	At    time.Time
	Err   error
}

// StageObserver records how long each step took.
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// Settings is the per-run policy.
type Settings struct {
	Cluster         string
	ExplorerCluster string
	AirdropLamports uint64
	AccountSpace    uint64
	Opcode          byte
	Submit          web3.SubmitOptions
}

// Result describes a finished run. Fields after the failing step are zero.
type Result struct {
	RunID       string
	Cluster     string
	Program     solana.PublicKey
	FeePayer    solana.PublicKey
	Account     solana.PublicKey
	Signature   solana.Signature
	Value       uint64
	ExplorerURL string
	State       State
	StartedAt   time.Time
	FinishedAt  time.Time
}

// WorkflowOption customises a Workflow.
type WorkflowOption func(*Workflow)

// WithGenerator replaces the identity source.
func WithGenerator(g identity.Generator) WorkflowOption {
	return func(w *Workflow) { w.generator = g }
}

// WithStageObserver records step durations.
func WithStageObserver(o StageObserver) WorkflowOption {
	return func(w *Workflow) { w.observer = o }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflow) {
		if l != nil {
			w.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) { w.now = now }
}

// Workflow runs the fund, create+invoke, confirm, read sequence once per call
// to Run. A Workflow may be reused; runs share no state besides the network.
type Workflow struct {
	network      web3.Network
	orchestrator *Orchestrator
	generator    identity.Generator
	settings     Settings
	feed         event.FeedOf[Transition]
	observer     StageObserver
	log          *slog.Logger
	now          func() time.Time
}

// NewWorkflow builds a workflow over network.
func NewWorkflow(network web3.Network, settings Settings, opts ...WorkflowOption) *Workflow {
	if settings.AccountSpace == 0 {
		settings.AccountSpace = counter.AccountSpace
	}
	if settings.Submit.Commitment == "" {
		settings.Submit.Commitment = web3.CommitmentConfirmed
	}
	w := &Workflow{
		network:   network,
		generator: identity.NewGenerator(),
		settings:  settings,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.log == nil {
		w.log = logger.Named("workflow")
	}
	w.orchestrator = NewOrchestrator(network, w.log)
	return w
}

// SubscribeTransitions delivers every transition of every run to ch. Sends
// block until ch accepts, so ch should be buffered or drained promptly.
func (w *Workflow) SubscribeTransitions(ch chan<- Transition) event.Subscription {
	return w.feed.Subscribe(ch)
}

// Run executes one counter run against program. The returned Result is
// populated up to the step that failed; identities are wiped before return.
func (w *Workflow) Run(ctx context.Context, program solana.PublicKey) (Result, error) {
	r := &run{
		w:     w,
		state: StateInit,
		result: Result{
			RunID:     uuid.NewString(),
			Cluster:   w.settings.Cluster,
			Program:   program,
			StartedAt: w.now(),
			State:     StateInit,
		},
	}
	log := w.log.With("run_id", r.result.RunID)
	log.Info("run started", "program", program.String(), "cluster", w.settings.Cluster)

	err := r.execute(ctx, log)
	r.result.FinishedAt = w.now()
	if err != nil {
		r.advance(StateFailed, err)
		log.Error("run failed", "state", string(r.failedAt), "error", err)
		return r.result, err
	}
	r.advance(StateSucceeded, nil)
	log.Info("run succeeded", "account", r.result.Account.String(), "value", r.result.Value)
	return r.result, nil
}

type run struct {
	w        *Workflow
	state    State
	failedAt State
	result   Result
}

func (r *run) advance(to State, err error) {
	from := r.state
	r.state = to
	r.result.State = to
	if to == StateFailed {
		r.failedAt = from
	}
	r.w.feed.Send(Transition{RunID: r.result.RunID, From: from, To: to, At: r.w.now(), Err: err})
}

func (r *run) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if r.w.observer != nil {
		r.w.observer.ObserveStage(name, time.Since(start), err)
	}
	return err
}

func (r *run) execute(ctx context.Context, log *slog.Logger) error {
	w := r.w
	settings := w.settings

	payer, err := w.generator.Generate()
	if err != nil {
		return err
	}
	defer payer.Destroy()
	account, err := w.generator.Generate()
	if err != nil {
		return err
	}
	defer account.Destroy()

	r.result.FeePayer = payer.Address()
	r.result.Account = account.Address()

	if err := r.stage("fund", func() error {
		return w.network.RequestCredit(ctx, payer.Address(), settings.AirdropLamports)
	}); err != nil {
		return err
	}
	r.advance(StateFunded, nil)
	log.Debug("fee payer funded", "payer", payer.Address().String(), "lamports", settings.AirdropLamports)

	var ops []web3.Operation
	if err := r.stage("build", func() error {
		create, err := counter.BuildCreateOperation(ctx, w.network, payer.Address(), account.Address(), r.result.Program, settings.AccountSpace)
		if err != nil {
			return err
		}
		ops = []web3.Operation{create, counter.BuildInstruction(r.result.Program, account.Address(), settings.Opcode)}
		return nil
	}); err != nil {
		return err
	}
	for _, op := range ops {
		log.Debug("operation", "detail", counter.Describe(op))
	}

	r.advance(StateSubmitted, nil)
	var receipt web3.Receipt
	if err := r.stage("submit", func() (err error) {
		receipt, err = w.orchestrator.Submit(ctx, ops, []*identity.Identity{payer, account}, settings.Submit)
		return err
	}); err != nil {
		return err
	}
	r.result.Signature = receipt.Signature
	r.result.ExplorerURL = web3.ExplorerURL(receipt.Signature, settings.ExplorerCluster)
	r.advance(StateConfirmed, nil)
	log.Debug("transaction confirmed", "signature", receipt.Signature.String(), "slot", receipt.Slot,
		"commitment", string(receipt.Commitment))

	if err := r.stage("read", func() (err error) {
		r.result.Value, err = counter.ReadCounter(ctx, w.network, account.Address())
		return err
	}); err != nil {
		return err
	}
	r.advance(StateRead, nil)
	return nil
}
