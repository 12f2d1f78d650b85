package web3

import (
	xerrors "counter-chain/internal/errors"
)

const (
	// CodeNetwork covers connectivity failures and timeouts talking to the RPC endpoint.
	CodeNetwork xerrors.Code = "NETWORK"
	// CodeFunding covers faucet rejections and exhausted quotas.
	CodeFunding xerrors.Code = "FUNDING"
	// CodeSubmission covers rejected or unconfirmed transactions.
	CodeSubmission xerrors.Code = "SUBMISSION"
	// CodePreflight covers transactions rejected by pre-submission simulation.
	CodePreflight xerrors.Code = "PREFLIGHT"
	// CodeAccountNotFound is returned when an account does not exist at read time.
	CodeAccountNotFound xerrors.Code = "ACCOUNT_NOT_FOUND"
)

var (
	// ErrAccountNotFound matches any account lookup miss via errors.Is.
	ErrAccountNotFound = xerrors.New(CodeAccountNotFound, "")
	// ErrSubmission matches any submission failure via errors.Is.
	ErrSubmission = xerrors.New(CodeSubmission, "")
	// ErrPreflight matches any preflight failure via errors.Is.
	ErrPreflight = xerrors.New(CodePreflight, "")
	// ErrFunding matches any funding failure via errors.Is.
	ErrFunding = xerrors.New(CodeFunding, "")
	// ErrNetwork matches any transport failure via errors.Is.
	ErrNetwork = xerrors.New(CodeNetwork, "")
)

func init() {
	xerrors.Register(CodeNetwork, xerrors.Attributes{
		Message:   "network request failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeFunding, xerrors.Attributes{
		Message:   "funding request rejected",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeSubmission, xerrors.Attributes{
		Message:  "transaction rejected",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodePreflight, xerrors.Attributes{
		Message:  "transaction simulation failed",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeAccountNotFound, xerrors.Attributes{
		Message:  "account not found",
		Severity: xerrors.SeverityInfo,
	})
}
