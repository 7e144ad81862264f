package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePaymentHash(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	h, err := ParsePaymentHash(valid)
	if err != nil {
		t.Fatalf("ParsePaymentHash failed: %v", err)
	}
	if h.String() != valid || h.IsZero() {
		t.Errorf("unexpected hash %s", h)
	}

	for _, in := range []string{"", "ab", strings.Repeat("zz", 32), strings.Repeat("ab", 33)} {
		if _, err := ParsePaymentHash(in); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParsePaymentHash(%q): expected ErrInvalidArgument, got %v", in, err)
		}
	}
}

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"even key", "02" + strings.Repeat("11", 32), true},
		{"odd key", "03" + strings.Repeat("11", 32), true},
		{"uncompressed prefix", "04" + strings.Repeat("11", 32), false},
		{"too short", "02" + strings.Repeat("11", 31), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNodeID(tt.input)
			if tt.ok {
				if err != nil {
					t.Fatalf("ParseNodeID failed: %v", err)
				}
				if n.String() != tt.input {
					t.Errorf("round trip mismatch: %s", n)
				}
				return
			}
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestParseSocketAddress(t *testing.T) {
	good := []string{"127.0.0.1:9735", "node.example.com:9735", "[::1]:9735"}
	for _, in := range good {
		if _, err := ParseSocketAddress(in); err != nil {
			t.Errorf("ParseSocketAddress(%q) failed: %v", in, err)
		}
	}
	bad := []string{"", "localhost", ":9735", "host:0", "host:99999", "host:port"}
	for _, in := range bad {
		if _, err := ParseSocketAddress(in); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseSocketAddress(%q): expected ErrInvalidArgument, got %v", in, err)
		}
	}
}

func TestParseNetwork(t *testing.T) {
	n, err := ParseNetwork("signet")
	if err != nil {
		t.Fatalf("ParseNetwork failed: %v", err)
	}
	if n.InvoicePrefix() != "lntbs" || n.AddressPrefix() != "tb1q" {
		t.Errorf("unexpected prefixes for %s", n)
	}
	if _, err := ParseNetwork("mainnet"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestEventEncoding(t *testing.T) {
	hash, _ := ParsePaymentHash(strings.Repeat("01", 32))
	chanID, _ := ParseChannelID(strings.Repeat("02", 32))
	peer, _ := ParseNodeID("03" + strings.Repeat("04", 32))

	events := []Event{
		PaymentSuccessful{PaymentHash: hash},
		PaymentFailed{PaymentHash: hash},
		PaymentReceived{PaymentHash: hash, AmountMsat: 350_000},
		ChannelPending{ChannelID: chanID, UserChannelID: 7, CounterpartyNodeID: peer, FundingTxo: "txid:0"},
		ChannelReady{ChannelID: chanID, UserChannelID: 7, CounterpartyNodeID: peer},
		ChannelClosed{ChannelID: chanID, UserChannelID: 7, CounterpartyNodeID: peer},
	}

	for _, ev := range events {
		data, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent(%s) failed: %v", ev.Kind(), err)
		}
		if !strings.Contains(string(data), `"kind":"`+ev.Kind().String()+`"`) {
			t.Errorf("%s: encoded event missing kind: %s", ev.Kind(), data)
		}
		got, err := UnmarshalEvent(data)
		if err != nil {
			t.Fatalf("UnmarshalEvent(%s) failed: %v", ev.Kind(), err)
		}
		if got != ev {
			t.Errorf("%s: got %+v, want %+v", ev.Kind(), got, ev)
		}
	}
}

func TestUnmarshalEvent_Errors(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"kind":"something"}`,
		`{"kind":"paymentreceived","payment_hash":"abc"}`,
	}
	for _, in := range inputs {
		if _, err := UnmarshalEvent([]byte(in)); err == nil {
			t.Errorf("UnmarshalEvent(%s): expected error", in)
		}
	}
}

func TestNodeError(t *testing.T) {
	base := NewNodeError(NodeErrInsufficientFunds, "need %d sats", 100)
	wrapped := WrapNodeError("open_channel", base)

	if !IsNodeError(wrapped, NodeErrInsufficientFunds) {
		t.Errorf("expected kind to survive wrapping: %v", wrapped)
	}
	if IsNodeError(wrapped, NodeErrNotRunning) {
		t.Error("unexpected kind match")
	}
	if got := wrapped.Error(); got != "open_channel: node: insufficient_funds: need 100 sats" {
		t.Errorf("unexpected message %q", got)
	}

	plain := WrapNodeError("list_peers", errors.New("io"))
	if IsNodeError(plain, NodeErrPersistenceFailed) || plain.Error() != "list_peers: io" {
		t.Errorf("unexpected wrap of plain error: %v", plain)
	}
	if WrapNodeError("noop", nil) != nil {
		t.Error("expected nil for nil error")
	}
}
