package control

import (
	"context"
	"fmt"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// NodeID returns the embedded node's public key.
func (p *Processor) NodeID() domain.NodeID {
	return p.node.NodeID()
}

// ListChannels returns the node's channels.
func (p *Processor) ListChannels() []domain.ChannelDetails {
	return p.node.ListChannels()
}

// ListPeers returns the node's peers.
func (p *Processor) ListPeers() []domain.PeerDetails {
	return p.node.ListPeers()
}

// ConnectPeer connects to a peer.
func (p *Processor) ConnectPeer(ctx context.Context, nodeID domain.NodeID, addr domain.SocketAddress, persist bool) error {
	if err := p.node.Connect(ctx, nodeID, addr, persist); err != nil {
		return domain.WrapNodeError("connect peer", err)
	}
	p.log.Info("Connected to peer", "peer", nodeID, "address", addr, "persist", persist)
	return nil
}

// OpenChannel opens a channel. Without an address the address of the already
// connected peer is used.
func (p *Processor) OpenChannel(ctx context.Context, req domain.OpenChannelRequest) error {
	addr := req.Address
	if addr == "" {
		addr = p.peerAddress(req.NodeID)
		if addr == "" {
			return fmt.Errorf("open channel to %s: %w", req.NodeID, domain.ErrPeerAddressRequired)
		}
	}

	err := p.node.ConnectOpenChannel(ctx, req.NodeID, addr, req.AmountSats, req.PushMsat, req.Public)
	if err != nil {
		return domain.WrapNodeError("open channel", err)
	}
	p.log.Info("Channel open initiated", "peer", req.NodeID, "address", addr, "sats", req.AmountSats)
	return nil
}

func (p *Processor) peerAddress(id domain.NodeID) domain.SocketAddress {
	for _, peer := range p.node.ListPeers() {
		if peer.NodeID == id && peer.IsConnected {
			return peer.Address
		}
	}
	return ""
}

// CloseChannel closes the channel with the given id. The counterparty is
// looked up in the channel list; unknown ids never reach the node.
func (p *Processor) CloseChannel(ctx context.Context, channelID domain.ChannelID) error {
	var (
		counterparty domain.NodeID
		found        bool
	)
	for _, ch := range p.node.ListChannels() {
		if ch.ChannelID == channelID {
			counterparty = ch.CounterpartyNodeID
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("close channel %s: %w", channelID, domain.ErrChannelNotFound)
	}

	if err := p.node.CloseChannel(ctx, channelID, counterparty); err != nil {
		return domain.WrapNodeError("close channel", err)
	}
	p.log.Info("Channel close initiated", "channel_id", channelID, "peer", counterparty)
	return nil
}

// NewOnchainAddress returns a fresh on-chain receiving address.
func (p *Processor) NewOnchainAddress(ctx context.Context) (string, error) {
	addr, err := p.node.NewOnchainAddress(ctx)
	if err != nil {
		return "", domain.WrapNodeError("new onchain address", err)
	}
	return addr, nil
}

// CreateInvoice creates an invoice. A nil amount creates a variable amount invoice.
func (p *Processor) CreateInvoice(ctx context.Context, amountMsat *uint64, description string, expirySecs uint32) (domain.Invoice, error) {
	var (
		inv domain.Invoice
		err error
	)
	if amountMsat == nil {
		inv, err = p.node.ReceiveVariableAmountPayment(ctx, description, expirySecs)
	} else {
		inv, err = p.node.ReceivePayment(ctx, *amountMsat, description, expirySecs)
	}
	if err != nil {
		return domain.Invoice{}, domain.WrapNodeError("create invoice", err)
	}
	return inv, nil
}

// PayInvoice pays an invoice, with an explicit amount when one is given.
func (p *Processor) PayInvoice(ctx context.Context, invoice string, amountMsat *uint64) (domain.PaymentHash, error) {
	var (
		hash domain.PaymentHash
		err  error
	)
	if amountMsat == nil {
		hash, err = p.node.SendPayment(ctx, invoice)
	} else {
		hash, err = p.node.SendPaymentUsingAmount(ctx, invoice, *amountMsat)
	}
	if err != nil {
		return domain.PaymentHash{}, domain.WrapNodeError("pay invoice", err)
	}
	p.log.Info("Payment initiated", "payment_hash", hash)
	return hash, nil
}

// SendKeysend probes the route and then sends a spontaneous payment.
func (p *Processor) SendKeysend(ctx context.Context, amountMsat uint64, destination domain.NodeID) (domain.PaymentHash, error) {
	if err := p.node.SendSpontaneousPaymentProbes(ctx, amountMsat, destination); err != nil {
		return domain.PaymentHash{}, domain.WrapNodeError("keysend probes", err)
	}
	hash, err := p.node.SendSpontaneousPayment(ctx, amountMsat, destination)
	if err != nil {
		return domain.PaymentHash{}, domain.WrapNodeError("keysend", err)
	}
	p.log.Info("Keysend initiated", "payment_hash", hash, "destination", destination, "amount_msat", amountMsat)
	return hash, nil
}
