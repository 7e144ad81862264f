package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies a node event variant.
type EventKind string

const (
	EventKindPaymentSuccessful EventKind = "paymentsuccessful"
	EventKindPaymentFailed     EventKind = "paymentfailed"
	EventKindPaymentReceived   EventKind = "paymentreceived"
	EventKindChannelPending    EventKind = "channelpending"
	EventKindChannelReady      EventKind = "channelready"
	EventKindChannelClosed     EventKind = "channelclosed"
)

// String returns the stable lowercase identifier, also used as broker routing key.
func (k EventKind) String() string { return string(k) }

// Event is something the embedded node reports. Variants are plain values so
// every delivery target receives its own copy.
type Event interface {
	Kind() EventKind
}

// PaymentSuccessful is emitted when an outbound payment completed.
type PaymentSuccessful struct {
	PaymentHash PaymentHash `json:"payment_hash"`
}

// PaymentFailed is emitted when an outbound payment was abandoned.
type PaymentFailed struct {
	PaymentHash PaymentHash `json:"payment_hash"`
}

// PaymentReceived is emitted when an inbound payment was claimed.
type PaymentReceived struct {
	PaymentHash PaymentHash `json:"payment_hash"`
	AmountMsat  uint64      `json:"amount_msat"`
}

// ChannelPending is emitted once the funding transaction was negotiated.
type ChannelPending struct {
	ChannelID                ChannelID `json:"channel_id"`
	UserChannelID            uint64    `json:"user_channel_id"`
	FormerTemporaryChannelID ChannelID `json:"former_temporary_channel_id"`
	CounterpartyNodeID       NodeID    `json:"counterparty_node_id"`
	FundingTxo               string    `json:"funding_txo"`
}

// ChannelReady is emitted when a channel can be used for payments.
type ChannelReady struct {
	ChannelID          ChannelID `json:"channel_id"`
	UserChannelID      uint64    `json:"user_channel_id"`
	CounterpartyNodeID NodeID    `json:"counterparty_node_id"`
}

// ChannelClosed is emitted when a channel was closed.
type ChannelClosed struct {
	ChannelID          ChannelID `json:"channel_id"`
	UserChannelID      uint64    `json:"user_channel_id"`
	CounterpartyNodeID NodeID    `json:"counterparty_node_id"`
}

func (PaymentSuccessful) Kind() EventKind { return EventKindPaymentSuccessful }
func (PaymentFailed) Kind() EventKind     { return EventKindPaymentFailed }
func (PaymentReceived) Kind() EventKind   { return EventKindPaymentReceived }
func (ChannelPending) Kind() EventKind    { return EventKindChannelPending }
func (ChannelReady) Kind() EventKind      { return EventKindChannelReady }
func (ChannelClosed) Kind() EventKind     { return EventKindChannelClosed }

// MarshalEvent encodes an event as a JSON object carrying its kind.
func MarshalEvent(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(ev.Kind())
	fields["kind"] = kind
	return json.Marshal(fields)
}

// UnmarshalEvent decodes the output of MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var head struct {
		Kind EventKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	var ev Event
	var err error
	switch head.Kind {
	case EventKindPaymentSuccessful:
		var v PaymentSuccessful
		err = json.Unmarshal(data, &v)
		ev = v
	case EventKindPaymentFailed:
		var v PaymentFailed
		err = json.Unmarshal(data, &v)
		ev = v
	case EventKindPaymentReceived:
		var v PaymentReceived
		err = json.Unmarshal(data, &v)
		ev = v
	case EventKindChannelPending:
		var v ChannelPending
		err = json.Unmarshal(data, &v)
		ev = v
	case EventKindChannelReady:
		var v ChannelReady
		err = json.Unmarshal(data, &v)
		ev = v
	case EventKindChannelClosed:
		var v ChannelClosed
		err = json.Unmarshal(data, &v)
		ev = v
	default:
		return nil, fmt.Errorf("unknown event kind %q", head.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", head.Kind, err)
	}
	return ev, nil
}
