// Package solana implements web3.Network against a Solana JSON-RPC endpoint.
package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"

	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/web3"
)

// Observer receives one callback per RPC round trip.
type Observer interface {
	ObserveRPC(method string, elapsed time.Duration, err error)
}

// Config describes how to construct a cluster client.
type Config struct {
	Name              string
	RPCURL            string
	RequestsPerSecond float64
	Burst             int
	// PollInterval is the first delay between signature status checks.
	PollInterval time.Duration
	// MaxPollInterval caps the exponential growth of the delay.
	MaxPollInterval time.Duration
	Observer        Observer
}

// Client implements web3.Network on top of the solana-go RPC client.
type Client struct {
	name     string
	rpc      *rpc.Client
	limiter  *rate.Limiter
	observer Observer
	poll     time.Duration
	maxPoll  time.Duration
	mu       sync.Mutex
}

// NewClient validates the endpoint and returns a ready-to-use client. No
// network call is made until the first request.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.RPCURL)
	if endpoint == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("cluster %q has no rpc_url", cfg.Name))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	maxPoll := cfg.MaxPollInterval
	if maxPoll < poll {
		maxPoll = 4 * poll
	}

	return &Client{
		name:     cfg.Name,
		rpc:      rpc.New(endpoint),
		limiter:  rate.NewLimiter(limit, burst),
		observer: cfg.Observer,
		poll:     poll,
		maxPoll:  maxPoll,
	}, nil
}

// Close releases the underlying HTTP transport.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		_ = c.rpc.Close()
		c.rpc = nil
	}
}

// RequestCredit airdrops amount lamports and waits until the airdrop is
// visible at the confirmed level.
func (c *Client) RequestCredit(ctx context.Context, address sol.PublicKey, amount uint64) error {
	var sig sol.Signature
	err := c.call(ctx, "requestAirdrop", func(cl *rpc.Client) (err error) {
		sig, err = cl.RequestAirdrop(ctx, address, amount, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return classify(err, web3.CodeFunding, "airdrop request failed", address)
	}

	if _, err := c.awaitSignature(ctx, sig, web3.CommitmentConfirmed, 0, web3.CodeFunding); err != nil {
		return err
	}
	return nil
}

// MinimumExemptBalance returns the rent-exempt minimum for space bytes.
func (c *Client) MinimumExemptBalance(ctx context.Context, space uint64) (uint64, error) {
	var lamports uint64
	err := c.call(ctx, "getMinimumBalanceForRentExemption", func(cl *rpc.Client) (err error) {
		lamports, err = cl.GetMinimumBalanceForRentExemption(ctx, space, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return 0, classify(err, web3.CodeNetwork, "query rent exemption", sol.PublicKey{})
	}
	return lamports, nil
}

// LatestBlockhash returns the most recent finalized-enough blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (web3.Blockhash, error) {
	var out *rpc.GetLatestBlockhashResult
	err := c.call(ctx, "getLatestBlockhash", func(cl *rpc.Client) (err error) {
		out, err = cl.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		return err
	})
	if err != nil {
		return web3.Blockhash{}, classify(err, web3.CodeNetwork, "fetch latest blockhash", sol.PublicKey{})
	}
	if out == nil || out.Value == nil {
		return web3.Blockhash{}, xerrors.New(web3.CodeNetwork, "empty getLatestBlockhash response")
	}
	return web3.Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SubmitAndConfirm broadcasts tx once and polls its status until
// opts.Commitment is reached, the transaction fails, the blockhash expires or
// ctx is done. The transaction is never re-broadcast.
func (c *Client) SubmitAndConfirm(ctx context.Context, tx *sol.Transaction, lastValidBlockHeight uint64, opts web3.SubmitOptions) (web3.Receipt, error) {
	if tx == nil {
		return web3.Receipt{}, xerrors.New(xerrors.CodeInvalidArgument, "transaction is nil")
	}
	target := opts.Commitment
	if target == "" {
		target = web3.CommitmentConfirmed
	}
	preflight := opts.PreflightCommitment
	if preflight == "" {
		preflight = target
	}

	rejected := web3.CodeSubmission
	if !opts.SkipPreflight {
		rejected = web3.CodePreflight
	}

	var sig sol.Signature
	err := c.call(ctx, "sendTransaction", func(cl *rpc.Client) (err error) {
		sig, err = cl.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: rpc.CommitmentType(preflight),
		})
		return err
	})
	if err != nil {
		return web3.Receipt{}, classify(err, rejected, "send transaction", sol.PublicKey{})
	}

	return c.awaitSignature(ctx, sig, target, lastValidBlockHeight, web3.CodeSubmission)
}

// FetchAccountBytes returns the data stored at address.
func (c *Client) FetchAccountBytes(ctx context.Context, address sol.PublicKey) ([]byte, error) {
	var out *rpc.GetAccountInfoResult
	err := c.call(ctx, "getAccountInfo", func(cl *rpc.Client) (err error) {
		out, err = cl.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Encoding:   sol.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		return nil, xerrors.New(web3.CodeAccountNotFound, "", xerrors.WithMetadata("address", address.String()))
	}
	if err != nil {
		return nil, classify(err, web3.CodeNetwork, "fetch account", address)
	}
	if out.Value.Data == nil {
		return []byte{}, nil
	}
	return out.Value.Data.GetBinary(), nil
}

// awaitSignature polls the signature status with exponential backoff. A
// non-zero lastValidBlockHeight bounds the wait by blockhash expiry.
func (c *Client) awaitSignature(ctx context.Context, sig sol.Signature, target web3.Commitment, lastValidBlockHeight uint64, failure xerrors.Code) (web3.Receipt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.poll
	policy.MaxInterval = c.maxPoll
	policy.MaxElapsedTime = 0

	meta := xerrors.WithMetadata("signature", sig.String())

	receipt, err := backoff.RetryWithData(func() (web3.Receipt, error) {
		var out *rpc.GetSignatureStatusesResult
		err := c.call(ctx, "getSignatureStatuses", func(cl *rpc.Client) (err error) {
			out, err = cl.GetSignatureStatuses(ctx, false, sig)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return web3.Receipt{}, backoff.Permanent(err)
			}
			return web3.Receipt{}, err
		}

		if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return web3.Receipt{}, backoff.Permanent(xerrors.Wrap(failure, errors.New(diagnostic(status.Err)), "transaction failed", meta))
			}
			reached := web3.Commitment(status.ConfirmationStatus)
			if reached.Satisfies(target) {
				return web3.Receipt{Signature: sig, Slot: status.Slot, Commitment: reached}, nil
			}
		}

		if lastValidBlockHeight > 0 {
			var height uint64
			err := c.call(ctx, "getBlockHeight", func(cl *rpc.Client) (err error) {
				height, err = cl.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
				return err
			})
			if err == nil && height > lastValidBlockHeight {
				return web3.Receipt{}, backoff.Permanent(xerrors.New(failure,
					fmt.Sprintf("blockhash expired at height %d before %s was reached", lastValidBlockHeight, target), meta))
			}
		}
		return web3.Receipt{}, errPending
	}, backoff.WithContext(policy, ctx))

	if err == nil {
		return receipt, nil
	}
	if _, ok := xerrors.From(err); ok {
		return web3.Receipt{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return web3.Receipt{}, xerrors.Wrap(xerrors.CodeTimeout, ctxErr, "confirmation wait aborted", meta)
	}
	return web3.Receipt{}, classify(err, web3.CodeNetwork, "poll signature status", sol.PublicKey{})
}

var errPending = errors.New("signature not yet at target commitment")

func (c *Client) call(ctx context.Context, method string, fn func(*rpc.Client) error) error {
	c.mu.Lock()
	cl := c.rpc
	c.mu.Unlock()
	if cl == nil {
		return errors.New("client is closed")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := fn(cl)
	if c.observer != nil {
		c.observer.ObserveRPC(method, time.Since(start), err)
	}
	return err
}

// classify maps an RPC error to a code: JSON-RPC errors are answers from the
// node and take rejected, everything else is transport and takes NETWORK.
func classify(err error, rejected xerrors.Code, message string, address sol.PublicKey) error {
	var opts []xerrors.Option
	if !address.IsZero() {
		opts = append(opts, xerrors.WithMetadata("address", address.String()))
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return xerrors.Wrap(rejected, err, message, opts...)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, message, opts...)
	}
	return xerrors.Wrap(web3.CodeNetwork, err, message, opts...)
}

func diagnostic(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
