// Package node defines the boundary between lnbridge and the embedded
// payment-channel node. Everything protocol related happens behind Node.
package node

import (
	"context"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// EventSource is the node's pending-event cursor.
// NextEvent must not be called again before EventHandled acknowledged the
// previous event, otherwise the node re-offers the same event.
type EventSource interface {
	// NextEvent returns the next pending event, or nil if there is none.
	NextEvent() (domain.Event, error)

	// EventHandled acknowledges the event last returned by NextEvent.
	EventHandled() error
}

// EventNotifier is an optional push primitive. A value is sent (or the
// channel is signalled) whenever a new event becomes pending, so pollers can
// wake up before their delay expires.
type EventNotifier interface {
	EventReady() <-chan struct{}
}

// Node defines the embedded node surface used by the bridge.
// Errors are *domain.NodeError values whenever the failure has a known kind.
type Node interface {
	EventSource

	// Start starts background processing of the node.
	Start() error

	// Stop shuts the node down.
	Stop() error

	// NodeID returns the node's public key.
	NodeID() domain.NodeID

	// ListChannels returns all known channels.
	ListChannels() []domain.ChannelDetails

	// ListPeers returns all known peers.
	ListPeers() []domain.PeerDetails

	// Connect connects to a peer, optionally persisting it for reconnects.
	Connect(ctx context.Context, nodeID domain.NodeID, addr domain.SocketAddress, persist bool) error

	// ConnectOpenChannel connects to a peer and opens a channel to it.
	ConnectOpenChannel(
		ctx context.Context,
		nodeID domain.NodeID,
		addr domain.SocketAddress,
		channelAmountSats uint64,
		pushToCounterpartyMsat *uint64,
		public bool,
	) error

	// CloseChannel cooperatively closes a channel with the given counterparty.
	CloseChannel(ctx context.Context, channelID domain.ChannelID, counterparty domain.NodeID) error

	// NewOnchainAddress returns a fresh receiving address of the on-chain wallet.
	NewOnchainAddress(ctx context.Context) (string, error)

	// ReceivePayment creates an invoice for a fixed amount.
	ReceivePayment(ctx context.Context, amountMsat uint64, description string, expirySecs uint32) (domain.Invoice, error)

	// ReceiveVariableAmountPayment creates an invoice without amount.
	ReceiveVariableAmountPayment(ctx context.Context, description string, expirySecs uint32) (domain.Invoice, error)

	// SendPayment pays an invoice that carries an amount.
	SendPayment(ctx context.Context, invoice string) (domain.PaymentHash, error)

	// SendPaymentUsingAmount pays an invoice with an explicit amount.
	SendPaymentUsingAmount(ctx context.Context, invoice string, amountMsat uint64) (domain.PaymentHash, error)

	// SendSpontaneousPaymentProbes probes the route of a keysend payment.
	SendSpontaneousPaymentProbes(ctx context.Context, amountMsat uint64, destination domain.NodeID) error

	// SendSpontaneousPayment sends a keysend payment.
	SendSpontaneousPayment(ctx context.Context, amountMsat uint64, destination domain.NodeID) (domain.PaymentHash, error)
}

// BuildConfig holds the parameters used to build an embedded node.
type BuildConfig struct {
	Network          domain.Network
	StorageDir       string
	LogDir           string
	ListeningAddress domain.SocketAddress
	EsploraURL       string
	Mnemonic         string
	LogLevel         string
}
