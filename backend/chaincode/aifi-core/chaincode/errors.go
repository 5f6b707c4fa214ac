package chaincode

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure. The kind is carried in the error string
// so gateway clients can map failures without parsing free-form text.
type Kind string

const (
	KindAuthorization     Kind = "AUTHORIZATION"
	KindValidation        Kind = "VALIDATION"
	KindState             Kind = "STATE"
	KindLiquidity         Kind = "LIQUIDITY"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindTransfer          Kind = "TRANSFER"
)

// LedgerError is the failure type returned by every contract operation that
// rejects a call. Any error of this type aborts the transaction, so no state
// written before the failure survives.
type LedgerError struct {
	Kind   Kind
	Reason string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// KindOf returns the classification of err, or "" for non-ledger errors.
func KindOf(err error) Kind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func errAuthorization(format string, args ...interface{}) error {
	return &LedgerError{Kind: KindAuthorization, Reason: fmt.Sprintf(format, args...)}
}

func errValidation(format string, args ...interface{}) error {
	return &LedgerError{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func errState(format string, args ...interface{}) error {
	return &LedgerError{Kind: KindState, Reason: fmt.Sprintf(format, args...)}
}

func errLiquidity(format string, args ...interface{}) error {
	return &LedgerError{Kind: KindLiquidity, Reason: fmt.Sprintf(format, args...)}
}

func errInsufficientFunds(format string, args ...interface{}) error {
	return &LedgerError{Kind: KindInsufficientFunds, Reason: fmt.Sprintf(format, args...)}
}

func errTransfer(format string, args ...interface{}) error {
	return &LedgerError{Kind: KindTransfer, Reason: fmt.Sprintf(format, args...)}
}
