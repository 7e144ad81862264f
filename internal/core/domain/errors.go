package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a request field cannot be decoded.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNodeStart is returned when the embedded node fails to initialize or start.
	ErrNodeStart = errors.New("node start failed")

	// ErrAlreadyStarted is returned by a second start of a one-shot component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when stopping a component that never started.
	ErrNotStarted = errors.New("not started")

	// ErrStopped is returned when starting or stopping a component that was
	// already stopped. Stopped components are not restarted.
	ErrStopped = errors.New("stopped")

	// ErrChannelNotFound is returned when a channel id is not in the channel list.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrPeerAddressRequired is returned when opening a channel to an unknown
	// peer without an address.
	ErrPeerAddressRequired = errors.New("peer is not connected, provide address")
)

// NodeErrorKind classifies failures reported by the embedded node.
type NodeErrorKind string

const (
	NodeErrNotRunning              NodeErrorKind = "not_running"
	NodeErrAlreadyRunning          NodeErrorKind = "already_running"
	NodeErrConnectionFailed        NodeErrorKind = "connection_failed"
	NodeErrInvoiceCreationFailed   NodeErrorKind = "invoice_creation_failed"
	NodeErrPaymentSendingFailed    NodeErrorKind = "payment_sending_failed"
	NodeErrProbeSendingFailed      NodeErrorKind = "probe_sending_failed"
	NodeErrDuplicatePayment        NodeErrorKind = "duplicate_payment"
	NodeErrChannelCreationFailed   NodeErrorKind = "channel_creation_failed"
	NodeErrChannelClosingFailed    NodeErrorKind = "channel_closing_failed"
	NodeErrInsufficientFunds       NodeErrorKind = "insufficient_funds"
	NodeErrOnchainTxCreationFailed NodeErrorKind = "onchain_tx_creation_failed"
	NodeErrInvalidInvoice          NodeErrorKind = "invalid_invoice"
	NodeErrInvalidAmount           NodeErrorKind = "invalid_amount"
	NodeErrInvalidAddress          NodeErrorKind = "invalid_address"
	NodeErrWalletOperationFailed   NodeErrorKind = "wallet_operation_failed"
	NodeErrPersistenceFailed       NodeErrorKind = "persistence_failed"
)

// NodeError is an embedded node failure surfaced unchanged in kind.
type NodeError struct {
	Op   string
	Kind NodeErrorKind
	Err  error
}

func (e *NodeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("node: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: node: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// NewNodeError builds a NodeError of the given kind.
func NewNodeError(kind NodeErrorKind, format string, args ...any) error {
	return &NodeError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WrapNodeError attaches the operation name to a node error, keeping its kind.
// Errors that are not NodeErrors are returned as they are, wrapped with op.
func WrapNodeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ne *NodeError
	if errors.As(err, &ne) {
		return &NodeError{Op: op, Kind: ne.Kind, Err: ne.Err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNodeError reports whether err carries the given node error kind.
func IsNodeError(err error, kind NodeErrorKind) bool {
	var ne *NodeError
	return errors.As(err, &ne) && ne.Kind == kind
}
