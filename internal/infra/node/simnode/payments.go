package simnode

import (
	"context"
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

const (
	defaultExpirySecs    = 3600
	maxDescriptionLength = 639
)

type paymentStatus int

const (
	paymentPending paymentStatus = iota
	paymentSucceeded
	paymentFailed
)

type invoiceRecord struct {
	invoice  domain.Invoice
	preimage [32]byte
	paid     bool
}

// ReceivePayment creates an invoice for a fixed amount.
func (n *Node) ReceivePayment(ctx context.Context, amountMsat uint64, description string, expirySecs uint32) (domain.Invoice, error) {
	if amountMsat == 0 {
		return domain.Invoice{}, domain.NewNodeError(domain.NodeErrInvalidAmount, "invoice amount must be positive")
	}
	return n.createInvoice(ctx, &amountMsat, description, expirySecs)
}

// ReceiveVariableAmountPayment creates an invoice the payer chooses the amount for.
func (n *Node) ReceiveVariableAmountPayment(ctx context.Context, description string, expirySecs uint32) (domain.Invoice, error) {
	return n.createInvoice(ctx, nil, description, expirySecs)
}

func (n *Node) createInvoice(ctx context.Context, amountMsat *uint64, description string, expirySecs uint32) (domain.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invoice{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkRunning(); err != nil {
		return domain.Invoice{}, err
	}
	if len(description) > maxDescriptionLength {
		return domain.Invoice{}, domain.NewNodeError(domain.NodeErrInvoiceCreationFailed,
			"description longer than %d bytes", maxDescriptionLength)
	}
	if expirySecs == 0 {
		expirySecs = defaultExpirySecs
	}

	rec := &invoiceRecord{}
	randomBytes(rec.preimage[:])
	hash := domain.PaymentHash(sha256.Sum256(rec.preimage[:]))

	rec.invoice = domain.Invoice{
		Encoded:     encodeInvoice(n.cfg.Network, hash, amountMsat),
		PaymentHash: hash,
		AmountMsat:  amountMsat,
		Description: description,
		ExpirySecs:  expirySecs,
	}
	n.invoices[hash] = rec
	return rec.invoice, nil
}

// SendPayment pays an invoice that carries an amount.
func (n *Node) SendPayment(ctx context.Context, invoice string) (domain.PaymentHash, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentHash{}, err
	}
	hash, amount, err := decodeInvoice(n.cfg.Network, invoice)
	if err != nil {
		return domain.PaymentHash{}, err
	}
	if amount == nil {
		return domain.PaymentHash{}, domain.NewNodeError(domain.NodeErrInvalidAmount,
			"invoice has no amount, an explicit amount is required")
	}
	return n.send(hash, *amount, nil)
}

// SendPaymentUsingAmount pays an invoice with an explicit amount, which must
// cover the invoice amount if it carries one.
func (n *Node) SendPaymentUsingAmount(ctx context.Context, invoice string, amountMsat uint64) (domain.PaymentHash, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentHash{}, err
	}
	hash, amount, err := decodeInvoice(n.cfg.Network, invoice)
	if err != nil {
		return domain.PaymentHash{}, err
	}
	if amount != nil && amountMsat < *amount {
		return domain.PaymentHash{}, domain.NewNodeError(domain.NodeErrInvalidAmount,
			"amount %d msat is below invoice amount %d msat", amountMsat, *amount)
	}
	return n.send(hash, amountMsat, nil)
}

// SendSpontaneousPaymentProbes checks a keysend route without moving funds.
func (n *Node) SendSpontaneousPaymentProbes(ctx context.Context, amountMsat uint64, destination domain.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkRunning(); err != nil {
		return err
	}
	if destination.IsZero() || destination == n.id {
		return domain.NewNodeError(domain.NodeErrProbeSendingFailed, "invalid keysend destination %s", destination)
	}
	if amountMsat == 0 {
		return domain.NewNodeError(domain.NodeErrInvalidAmount, "probe amount must be positive")
	}
	if n.routeLocked(amountMsat) == nil {
		return domain.NewNodeError(domain.NodeErrProbeSendingFailed, "no route for %d msat", amountMsat)
	}
	return nil
}

// SendSpontaneousPayment sends a keysend payment to destination.
func (n *Node) SendSpontaneousPayment(ctx context.Context, amountMsat uint64, destination domain.NodeID) (domain.PaymentHash, error) {
	if err := ctx.Err(); err != nil {
		return domain.PaymentHash{}, err
	}
	if destination.IsZero() || destination == n.id {
		return domain.PaymentHash{}, domain.NewNodeError(domain.NodeErrPaymentSendingFailed,
			"invalid keysend destination %s", destination)
	}
	var preimage [32]byte
	randomBytes(preimage[:])
	hash := domain.PaymentHash(sha256.Sum256(preimage[:]))
	return n.send(hash, amountMsat, &destination)
}

// send routes amountMsat over the first usable channel. Paying one of the
// node's own invoices is treated as a circular route and also produces the
// receiving side's PaymentReceived.
func (n *Node) send(hash domain.PaymentHash, amountMsat uint64, keysendTo *domain.NodeID) (domain.PaymentHash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkRunning(); err != nil {
		return domain.PaymentHash{}, err
	}
	if amountMsat == 0 {
		return domain.PaymentHash{}, domain.NewNodeError(domain.NodeErrInvalidAmount, "amount must be positive")
	}
	if st, ok := n.payments[hash]; ok && st != paymentFailed {
		return domain.PaymentHash{}, domain.NewNodeError(domain.NodeErrDuplicatePayment, "payment %s already sent", hash)
	}
	if !n.hasUsableChannelLocked() {
		return domain.PaymentHash{}, domain.NewNodeError(domain.NodeErrPaymentSendingFailed, "no usable channel")
	}

	ch := n.routeLocked(amountMsat)
	if ch == nil {
		n.payments[hash] = paymentFailed
		n.enqueue(domain.PaymentFailed{PaymentHash: hash})
		n.log.Warn("Payment failed", "payment_hash", hash, "amount_msat", amountMsat)
		return hash, nil
	}

	n.payments[hash] = paymentSucceeded
	if rec, own := n.invoices[hash]; own && keysendTo == nil {
		rec.paid = true
		n.enqueue(domain.PaymentSuccessful{PaymentHash: hash})
		n.enqueue(domain.PaymentReceived{PaymentHash: hash, AmountMsat: amountMsat})
		n.log.Info("Circular payment settled", "payment_hash", hash, "amount_msat", amountMsat)
		return hash, nil
	}

	ch.OutboundCapacityMsat -= amountMsat
	ch.InboundCapacityMsat += amountMsat
	n.enqueue(domain.PaymentSuccessful{PaymentHash: hash})
	n.log.Info("Payment sent", "payment_hash", hash, "amount_msat", amountMsat, "channel_id", ch.ChannelID)
	return hash, nil
}

func (n *Node) hasUsableChannelLocked() bool {
	for _, c := range n.channels {
		if c.IsUsable {
			return true
		}
	}
	return false
}

func (n *Node) routeLocked(amountMsat uint64) *domain.ChannelDetails {
	for _, c := range n.channels {
		if c.IsUsable && c.OutboundCapacityMsat >= amountMsat {
			return c
		}
	}
	return nil
}

// encodeInvoice builds "<hrp>1<data>" where the hrp carries the network prefix
// and an optional amount in pico-bitcoin, and data encodes the payment hash.
func encodeInvoice(network domain.Network, hash domain.PaymentHash, amountMsat *uint64) string {
	var b strings.Builder
	b.WriteString(network.InvoicePrefix())
	if amountMsat != nil {
		b.WriteString(strconv.FormatUint(*amountMsat*10, 10))
		b.WriteByte('p')
	}
	b.WriteByte('1')
	b.WriteString(encodeBase32(hash[:]))
	return b.String()
}

func decodeInvoice(network domain.Network, s string) (domain.PaymentHash, *uint64, error) {
	var hash domain.PaymentHash
	s = strings.ToLower(strings.TrimSpace(s))

	sep := strings.LastIndexByte(s, '1')
	if sep < 0 {
		return hash, nil, domain.NewNodeError(domain.NodeErrInvalidInvoice, "missing separator")
	}
	hrp, data := s[:sep], s[sep+1:]

	prefix := network.InvoicePrefix()
	if prefix == "" || !strings.HasPrefix(hrp, prefix) {
		return hash, nil, domain.NewNodeError(domain.NodeErrInvalidInvoice, "invoice is not for network %s", network)
	}

	var amount *uint64
	if raw := hrp[len(prefix):]; raw != "" {
		if !strings.HasSuffix(raw, "p") {
			return hash, nil, domain.NewNodeError(domain.NodeErrInvalidInvoice, "unsupported amount %q", raw)
		}
		pico, err := strconv.ParseUint(strings.TrimSuffix(raw, "p"), 10, 64)
		if err != nil || pico%10 != 0 {
			return hash, nil, domain.NewNodeError(domain.NodeErrInvalidInvoice, "unsupported amount %q", raw)
		}
		msat := pico / 10
		amount = &msat
	}

	b, ok := decodeBase32(data, len(hash))
	if !ok {
		return hash, nil, domain.NewNodeError(domain.NodeErrInvalidInvoice, "malformed payment hash")
	}
	copy(hash[:], b)
	return hash, amount, nil
}
