package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	xerrors "counter-chain/internal/errors"
	"counter-chain/internal/web3"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers JSON-RPC calls from a per-method queue of results. The
// last entry of a queue is repeated once the queue is drained.
type fakeNode struct {
	mu      sync.Mutex
	replies map[string][]any
	calls   []rpcRequest
}

type rpcFailure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	node := &fakeNode{replies: make(map[string][]any)}
	srv := httptest.NewServer(http.HandlerFunc(node.serve))
	t.Cleanup(srv.Close)
	return node, srv
}

func (n *fakeNode) on(method string, results ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies[method] = append(n.replies[method], results...)
}

func (n *fakeNode) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.Method)
	}
	return out
}

func (n *fakeNode) request(method string) (rpcRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.calls {
		if c.Method == method {
			return c, true
		}
	}
	return rpcRequest{}, false
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, req)
	queue := n.replies[req.Method]
	var reply any
	if len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			n.replies[req.Method] = queue[1:]
		}
	}
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if failure, ok := reply.(rpcFailure); ok {
		resp["error"] = failure
	} else {
		resp["result"] = reply
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type recordingObserver struct {
	mu      sync.Mutex
	methods []string
	errs    int
}

func (o *recordingObserver) ObserveRPC(method string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.methods = append(o.methods, method)
	if err != nil {
		o.errs++
	}
}

func newTestClient(t *testing.T, url string, observer Observer) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Name:            "test",
		RPCURL:          url,
		PollInterval:    time.Millisecond,
		MaxPollInterval: 2 * time.Millisecond,
		Observer:        observer,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func withContext(slot uint64, value any) map[string]any {
	return map[string]any{"context": map[string]any{"slot": slot}, "value": value}
}

func status(confirmation string, txErr any) map[string]any {
	return map[string]any{
		"slot":               42,
		"confirmations":      nil,
		"err":                txErr,
		"confirmationStatus": confirmation,
	}
}

func signedTransaction(t *testing.T) *sol.Transaction {
	t.Helper()
	payer := sol.NewWallet()
	tx, err := sol.NewTransaction(
		[]sol.Instruction{sol.NewInstruction(sol.SystemProgramID, sol.AccountMetaSlice{
			sol.NewAccountMeta(payer.PublicKey(), true, true),
		}, []byte{0})},
		sol.Hash{1},
		sol.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{Name: "empty"})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestRequestCreditWaitsForConfirmation(t *testing.T) {
	node, srv := newFakeNode(t)
	sig := sol.Signature{9}
	node.on("requestAirdrop", sig.String())
	node.on("getSignatureStatuses",
		withContext(1, []any{nil}),
		withContext(2, []any{status("processed", nil)}),
		withContext(3, []any{status("confirmed", nil)}),
	)

	observer := &recordingObserver{}
	client := newTestClient(t, srv.URL, observer)
	require.NoError(t, client.RequestCredit(context.Background(), sol.SystemProgramID, 2_000_000_000))

	require.Equal(t, []string{"requestAirdrop", "getSignatureStatuses", "getSignatureStatuses", "getSignatureStatuses"}, node.methods())
	require.Len(t, observer.methods, 4)
	require.Zero(t, observer.errs)
}

func TestRequestCreditRejected(t *testing.T) {
	node, srv := newFakeNode(t)
	node.on("requestAirdrop", rpcFailure{Code: 429, Message: "airdrop limit reached"})

	err := newTestClient(t, srv.URL, nil).RequestCredit(context.Background(), sol.SystemProgramID, 1)
	require.Error(t, err)
	require.ErrorIs(t, err, web3.ErrFunding)
	require.Contains(t, err.Error(), "airdrop limit reached")
}

func TestTransportFailureIsNetwork(t *testing.T) {
	_, srv := newFakeNode(t)
	client := newTestClient(t, srv.URL, nil)
	srv.Close()

	_, err := client.MinimumExemptBalance(context.Background(), 8)
	require.ErrorIs(t, err, web3.ErrNetwork)
}

func TestMinimumExemptBalanceAndBlockhash(t *testing.T) {
	node, srv := newFakeNode(t)
	node.on("getMinimumBalanceForRentExemption", 946560)
	hash := sol.Hash{7}
	node.on("getLatestBlockhash", withContext(5, map[string]any{
		"blockhash":            hash.String(),
		"lastValidBlockHeight": 150,
	}))

	client := newTestClient(t, srv.URL, nil)
	lamports, err := client.MinimumExemptBalance(context.Background(), 8)
	require.NoError(t, err)
	require.EqualValues(t, 946560, lamports)

	bh, err := client.LatestBlockhash(context.Background())
	require.NoError(t, err)
	require.Equal(t, hash, bh.Hash)
	require.EqualValues(t, 150, bh.LastValidBlockHeight)
}

func TestSubmitAndConfirm(t *testing.T) {
	node, srv := newFakeNode(t)
	tx := signedTransaction(t)
	node.on("sendTransaction", tx.Signatures[0].String())
	node.on("getSignatureStatuses",
		withContext(1, []any{nil}),
		withContext(2, []any{status("finalized", nil)}),
	)
	node.on("getBlockHeight", 100)

	receipt, err := newTestClient(t, srv.URL, nil).SubmitAndConfirm(context.Background(), tx, 150, web3.SubmitOptions{
		Commitment:    web3.CommitmentConfirmed,
		SkipPreflight: true,
	})
	require.NoError(t, err)
	require.Equal(t, tx.Signatures[0], receipt.Signature)
	require.Equal(t, web3.CommitmentFinalized, receipt.Commitment)
	require.EqualValues(t, 42, receipt.Slot)

	send, ok := node.request("sendTransaction")
	require.True(t, ok)
	require.Len(t, send.Params, 2)
	var opts map[string]any
	require.NoError(t, json.Unmarshal(send.Params[1], &opts))
	require.Equal(t, true, opts["skipPreflight"])
}

func TestSubmitRejectionFollowsPreflightPolicy(t *testing.T) {
	cases := []struct {
		name string
		skip bool
		want error
	}{
		{name: "preflight", skip: false, want: web3.ErrPreflight},
		{name: "skip-preflight", skip: true, want: web3.ErrSubmission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node, srv := newFakeNode(t)
			node.on("sendTransaction", rpcFailure{Code: -32002, Message: "Transaction simulation failed: account already in use"})

			_, err := newTestClient(t, srv.URL, nil).SubmitAndConfirm(context.Background(), signedTransaction(t), 150,
				web3.SubmitOptions{Commitment: web3.CommitmentConfirmed, SkipPreflight: tc.skip})
			require.ErrorIs(t, err, tc.want)
			require.Contains(t, err.Error(), "account already in use")
			require.Equal(t, []string{"sendTransaction"}, node.methods())
		})
	}
}

func TestSubmitTransactionErrorCarriesDiagnostic(t *testing.T) {
	node, srv := newFakeNode(t)
	tx := signedTransaction(t)
	node.on("sendTransaction", tx.Signatures[0].String())
	node.on("getSignatureStatuses", withContext(1, []any{
		status("processed", map[string]any{"InstructionError": []any{1, map[string]any{"Custom": 3}}}),
	}))

	_, err := newTestClient(t, srv.URL, nil).SubmitAndConfirm(context.Background(), tx, 150,
		web3.SubmitOptions{Commitment: web3.CommitmentConfirmed, SkipPreflight: true})
	require.ErrorIs(t, err, web3.ErrSubmission)
	require.Contains(t, err.Error(), `{"InstructionError":[1,{"Custom":3}]}`)
}

func TestSubmitStopsOnBlockhashExpiry(t *testing.T) {
	node, srv := newFakeNode(t)
	tx := signedTransaction(t)
	node.on("sendTransaction", tx.Signatures[0].String())
	node.on("getSignatureStatuses", withContext(1, []any{nil}))
	node.on("getBlockHeight", 140, 151)

	_, err := newTestClient(t, srv.URL, nil).SubmitAndConfirm(context.Background(), tx, 150,
		web3.SubmitOptions{Commitment: web3.CommitmentConfirmed, SkipPreflight: true})
	require.ErrorIs(t, err, web3.ErrSubmission)
	require.Contains(t, err.Error(), "blockhash expired")
}

func TestSubmitHonoursDeadline(t *testing.T) {
	node, srv := newFakeNode(t)
	tx := signedTransaction(t)
	node.on("sendTransaction", tx.Signatures[0].String())
	node.on("getSignatureStatuses", withContext(1, []any{nil}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv.URL, nil).SubmitAndConfirm(ctx, tx, 0,
		web3.SubmitOptions{Commitment: web3.CommitmentConfirmed, SkipPreflight: true})
	require.Error(t, err)
	require.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))
}

func TestFetchAccountBytes(t *testing.T) {
	node, srv := newFakeNode(t)
	owner := sol.NewWallet().PublicKey()
	node.on("getAccountInfo",
		withContext(1, nil),
		withContext(2, map[string]any{
			"data":       []string{"AQAAAAAAAAA=", "base64"},
			"executable": false,
			"lamports":   946560,
			"owner":      owner.String(),
			"rentEpoch":  0,
			"space":      8,
		}),
	)

	client := newTestClient(t, srv.URL, nil)
	_, err := client.FetchAccountBytes(context.Background(), owner)
	require.ErrorIs(t, err, web3.ErrAccountNotFound)

	data, err := client.FetchAccountBytes(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, data)
}
