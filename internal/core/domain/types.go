package domain

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
)

// PaymentHash identifies a payment.
type PaymentHash [32]byte

// ChannelID identifies a channel.
type ChannelID [32]byte

// NodeID is a compressed secp256k1 public key identifying a node.
type NodeID [33]byte

func (h PaymentHash) String() string { return hex.EncodeToString(h[:]) }
func (c ChannelID) String() string   { return hex.EncodeToString(c[:]) }
func (n NodeID) String() string      { return hex.EncodeToString(n[:]) }

// IsZero reports whether all bytes are zero.
func (h PaymentHash) IsZero() bool { return h == PaymentHash{} }

// IsZero reports whether the node id is unset.
func (n NodeID) IsZero() bool { return n == NodeID{} }

func (h PaymentHash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }
func (c ChannelID) MarshalText() ([]byte, error)   { return []byte(c.String()), nil }
func (n NodeID) MarshalText() ([]byte, error)      { return []byte(n.String()), nil }

func (h *PaymentHash) UnmarshalText(b []byte) error { return decodeFixed(h[:], string(b), "payment hash") }
func (c *ChannelID) UnmarshalText(b []byte) error   { return decodeFixed(c[:], string(b), "channel id") }
func (n *NodeID) UnmarshalText(b []byte) error      { return decodeFixed(n[:], string(b), "node id") }

// ParsePaymentHash decodes a 64 character hex string.
func ParsePaymentHash(s string) (PaymentHash, error) {
	var h PaymentHash
	return h, decodeFixed(h[:], s, "payment hash")
}

// ParseChannelID decodes a 64 character hex string.
func ParseChannelID(s string) (ChannelID, error) {
	var c ChannelID
	return c, decodeFixed(c[:], s, "channel id")
}

// ParseNodeID decodes a 66 character hex compressed public key.
func ParseNodeID(s string) (NodeID, error) {
	var n NodeID
	if err := decodeFixed(n[:], s, "node id"); err != nil {
		return n, err
	}
	if n[0] != 0x02 && n[0] != 0x03 {
		return NodeID{}, fmt.Errorf("%w: node id must be a compressed public key", ErrInvalidArgument)
	}
	return n, nil
}

func decodeFixed(dst []byte, s, what string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("%w: %s must be %d hex characters, got %d",
			ErrInvalidArgument, what, hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArgument, what, err)
	}
	return nil
}

// SocketAddress is a host:port pair a peer listens on.
type SocketAddress string

// ParseSocketAddress validates a host:port string.
func ParseSocketAddress(s string) (SocketAddress, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("%w: address %q: %v", ErrInvalidArgument, s, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: address %q has no host", ErrInvalidArgument, s)
	}
	if p, err := strconv.ParseUint(port, 10, 16); err != nil || p == 0 {
		return "", fmt.Errorf("%w: address %q has invalid port", ErrInvalidArgument, s)
	}
	return SocketAddress(s), nil
}

// ChannelDetails describes a channel as reported by the node.
type ChannelDetails struct {
	ChannelID             ChannelID `json:"channel_id"`
	CounterpartyNodeID    NodeID    `json:"counterparty_node_id"`
	FundingTxo            string    `json:"funding_txo,omitempty"`
	ChannelValueSats      uint64    `json:"channel_value_sats"`
	UserChannelID         uint64    `json:"user_channel_id"`
	OutboundCapacityMsat  uint64    `json:"outbound_capacity_msat"`
	InboundCapacityMsat   uint64    `json:"inbound_capacity_msat"`
	ConfirmationsRequired uint32    `json:"confirmations_required"`
	Confirmations         uint32    `json:"confirmations"`
	IsOutbound            bool      `json:"is_outbound"`
	IsChannelReady        bool      `json:"is_channel_ready"`
	IsUsable              bool      `json:"is_usable"`
	IsPublic              bool      `json:"is_public"`
}

// PeerDetails describes a known peer.
type PeerDetails struct {
	NodeID      NodeID        `json:"node_id"`
	Address     SocketAddress `json:"address"`
	IsPersisted bool          `json:"is_persisted"`
	IsConnected bool          `json:"is_connected"`
}

// Invoice is an encoded BOLT11 payment request.
type Invoice struct {
	Encoded     string      `json:"invoice"`
	PaymentHash PaymentHash `json:"payment_hash"`
	AmountMsat  *uint64     `json:"amount_msat,omitempty"`
	Description string      `json:"description"`
	ExpirySecs  uint32      `json:"expiry_secs"`
}

// OpenChannelRequest describes a channel to open.
type OpenChannelRequest struct {
	NodeID     NodeID
	Address    SocketAddress // optional when the peer is connected
	AmountSats uint64
	PushMsat   *uint64
	Public     bool
}
