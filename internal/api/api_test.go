package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/dispatch"
	"github.com/vietddude/lnbridge/internal/infra/storage"
	"github.com/vietddude/lnbridge/internal/infra/storage/memory"
)

// =============================================================================
// Mocks
// =============================================================================

// MockBackend records calls and returns scripted errors
type MockBackend struct {
	mu    sync.Mutex
	Calls []string

	ID       domain.NodeID
	Channels []domain.ChannelDetails
	Err      error
	Trigger  []string
}

func (m *MockBackend) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
	return m.Err
}

func (m *MockBackend) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

func (m *MockBackend) NodeID() domain.NodeID                 { return m.ID }
func (m *MockBackend) ListChannels() []domain.ChannelDetails { return m.Channels }
func (m *MockBackend) ListPeers() []domain.PeerDetails       { return nil }

func (m *MockBackend) ConnectPeer(ctx context.Context, id domain.NodeID, addr domain.SocketAddress, persist bool) error {
	return m.record("ConnectPeer")
}

func (m *MockBackend) OpenChannel(ctx context.Context, req domain.OpenChannelRequest) error {
	return m.record("OpenChannel")
}

func (m *MockBackend) CloseChannel(ctx context.Context, id domain.ChannelID) error {
	return m.record("CloseChannel")
}

func (m *MockBackend) NewOnchainAddress(ctx context.Context) (string, error) {
	return "bcrt1qtest", m.record("NewOnchainAddress")
}

func (m *MockBackend) CreateInvoice(ctx context.Context, amountMsat *uint64, description string, expirySecs uint32) (domain.Invoice, error) {
	if err := m.record("CreateInvoice"); err != nil {
		return domain.Invoice{}, err
	}
	return domain.Invoice{Encoded: "lnbcrt10n1test", AmountMsat: amountMsat, Description: description, ExpirySecs: expirySecs}, nil
}

func (m *MockBackend) PayInvoice(ctx context.Context, invoice string, amountMsat *uint64) (domain.PaymentHash, error) {
	return domain.PaymentHash{1}, m.record("PayInvoice")
}

func (m *MockBackend) SendKeysend(ctx context.Context, amountMsat uint64, dest domain.NodeID) (domain.PaymentHash, error) {
	return domain.PaymentHash{2}, m.record("SendKeysend")
}

func (m *MockBackend) TriggerPaymentEvent(ctx context.Context, paymentHash string) (domain.PaymentReceived, error) {
	if err := m.record("TriggerPaymentEvent"); err != nil {
		return domain.PaymentReceived{}, err
	}
	m.mu.Lock()
	m.Trigger = append(m.Trigger, paymentHash)
	m.mu.Unlock()

	hash, err := domain.ParsePaymentHash(paymentHash)
	if err != nil {
		return domain.PaymentReceived{}, err
	}
	return domain.PaymentReceived{PaymentHash: hash, AmountMsat: 350000}, nil
}

// =============================================================================
// Helpers
// =============================================================================

type testServer struct {
	backend    *MockBackend
	dispatcher *dispatch.Dispatcher
	journal    *memory.Journal
	addr       string
	client     *Client
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		backend:    &MockBackend{ID: domain.NodeID{0x02, 0xaa}},
		dispatcher: dispatch.NewDispatcher(nil, nil, nil),
		journal:    memory.NewJournal(16),
	}
	svc := NewService(ts.backend, ts.dispatcher, ts.journal, 8, nil)
	srv := NewServer("127.0.0.1:0", svc, []string{"*"})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	go srv.Serve(lis)
	ts.addr = lis.Addr().String()

	client, err := Dial(ts.addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	ts.client = client

	t.Cleanup(func() {
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return ts
}

func (ts *testServer) post(t *testing.T, method, body string) *http.Response {
	t.Helper()
	resp, err := http.Post("http://"+ts.addr+"/"+ServiceName+"/"+method, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", method, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var testHash = strings.Repeat("ab", 32)

// =============================================================================
// gRPC
// =============================================================================

func TestGRPC_NodeID(t *testing.T) {
	ts := startServer(t)

	out, err := ts.client.Call(context.Background(), MethodNodeID, nil)
	if err != nil {
		t.Fatalf("NodeID failed: %v", err)
	}
	if out["node_id"] != ts.backend.ID.String() {
		t.Errorf("unexpected node id %v", out["node_id"])
	}
}

func TestGRPC_TriggerEvent(t *testing.T) {
	ts := startServer(t)

	out, err := ts.client.TriggerEvent(context.Background(), testHash)
	if err != nil {
		t.Fatalf("TriggerEvent failed: %v", err)
	}
	if out["payment_hash"] != testHash || out["amount_msat"] != float64(350000) {
		t.Errorf("unexpected response %v", out)
	}
	if len(ts.backend.Trigger) != 1 || ts.backend.Trigger[0] != testHash {
		t.Errorf("expected hash forwarded, got %v", ts.backend.Trigger)
	}
}

func TestGRPC_ErrorDetails(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   codes.Code
		reason string
	}{
		{"channel not found", domain.ErrChannelNotFound, codes.NotFound, "channel_not_found"},
		{"node error kind", domain.WrapNodeError("close channel",
			domain.NewNodeError(domain.NodeErrChannelClosingFailed, "boom")), codes.Internal, "channel_closing_failed"},
		{"insufficient funds", domain.NewNodeError(domain.NodeErrInsufficientFunds, "short"), codes.FailedPrecondition, "insufficient_funds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startServer(t)
			ts.backend.Err = tt.err

			_, err := ts.client.Call(context.Background(), MethodCloseChannel, map[string]any{
				"channel_id": testHash,
			})
			if status.Code(err) != tt.code {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
			if got := ErrorReason(err); got != tt.reason {
				t.Errorf("expected reason %s, got %q", tt.reason, got)
			}
		})
	}
}

func TestGRPC_InvalidArgumentNeverReachesBackend(t *testing.T) {
	ts := startServer(t)

	_, err := ts.client.Call(context.Background(), MethodConnectPeer, map[string]any{
		"node_id": "zz",
		"address": "127.0.0.1:9735",
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if calls := ts.backend.called(); len(calls) != 0 {
		t.Errorf("expected no backend calls, got %v", calls)
	}
}

func TestGRPC_SubscribeEvents(t *testing.T) {
	ts := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan map[string]any, 4)
	done := make(chan error, 1)
	go func() {
		done <- ts.client.Subscribe(ctx, "test", []string{"paymentreceived"}, func(ev map[string]any) error {
			got <- ev
			return nil
		})
	}()
	waitFor(t, func() bool { return ts.dispatcher.SubscriberCount() == 1 })

	hash, _ := domain.ParsePaymentHash(testHash)
	ts.dispatcher.Notify(context.Background(), domain.PaymentSuccessful{PaymentHash: hash})
	ts.dispatcher.Notify(context.Background(), domain.PaymentReceived{PaymentHash: hash, AmountMsat: 1000})

	select {
	case ev := <-got:
		if ev["kind"] != "paymentreceived" || ev["payment_hash"] != testHash {
			t.Errorf("unexpected event %v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	if err := <-done; status.Code(err) != codes.Canceled {
		t.Errorf("expected Canceled, got %v", err)
	}
	waitFor(t, func() bool { return ts.dispatcher.SubscriberCount() == 0 })
}

func TestGRPC_ListEvents(t *testing.T) {
	ts := startServer(t)

	hash, _ := domain.ParsePaymentHash(testHash)
	rec, err := storage.NewRecord(domain.PaymentReceived{PaymentHash: hash, AmountMsat: 5}, time.Now())
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	if err := ts.journal.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	out, err := ts.client.Call(context.Background(), MethodListEvents, map[string]any{"kind": "paymentreceived"})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	events, _ := out["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", out)
	}
	first := events[0].(map[string]any)
	if first["id"] != rec.ID.String() || first["kind"] != "paymentreceived" {
		t.Errorf("unexpected record %v", first)
	}

	_, err = ts.client.Call(context.Background(), MethodListEvents, map[string]any{"since": "yesterday"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for bad since, got %v", err)
	}
}

func TestService_ListEventsWithoutJournal(t *testing.T) {
	svc := NewService(&MockBackend{}, dispatch.NewDispatcher(nil, nil, nil), nil, 0, nil)
	_, err := svc.ListEvents(context.Background(), nil)
	if !errors.Is(err, errJournalDisabled) {
		t.Fatalf("expected errJournalDisabled, got %v", err)
	}
	if status.Code(toStatus(err)) != codes.Unimplemented {
		t.Errorf("expected Unimplemented, got %v", toStatus(err))
	}
}

// =============================================================================
// Gateway
// =============================================================================

func TestGateway_Unary(t *testing.T) {
	ts := startServer(t)

	resp := ts.post(t, MethodCreateInvoice, `{"amount_msat": 1000, "description": "coffee", "expiry_secs": 60}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var inv map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if inv["invoice"] != "lnbcrt10n1test" || inv["description"] != "coffee" {
		t.Errorf("unexpected invoice %v", inv)
	}
}

func TestGateway_Errors(t *testing.T) {
	ts := startServer(t)

	tests := []struct {
		name   string
		method string
		body   string
		code   int
		reason string
	}{
		{"unknown method", "Explode", `{}`, http.StatusNotImplemented, "unimplemented"},
		{"not an object", MethodPayInvoice, `[1,2]`, http.StatusBadRequest, "invalid_argument"},
		{"missing invoice", MethodPayInvoice, `{}`, http.StatusBadRequest, "invalid_argument"},
		{"bad channel id", MethodCloseChannel, `{"channel_id":"00"}`, http.StatusBadRequest, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(t, tt.method, tt.body)
			if resp.StatusCode != tt.code {
				t.Errorf("expected %d, got %d", tt.code, resp.StatusCode)
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if body.Reason != tt.reason {
				t.Errorf("expected reason %s, got %+v", tt.reason, body)
			}
		})
	}
}

func TestGateway_CORSPreflight(t *testing.T) {
	ts := startServer(t)

	req, _ := http.NewRequest(http.MethodOptions, "http://"+ts.addr+"/"+ServiceName+"/"+MethodNodeID, nil)
	req.Header.Set("Origin", "http://wallet.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestGateway_StreamEvents(t *testing.T) {
	ts := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		"http://"+ts.addr+"/"+ServiceName+"/"+MethodSubscribeEvents, bytes.NewBufferString(`{"name":"browser"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("unexpected content type %q", ct)
	}

	waitFor(t, func() bool { return ts.dispatcher.SubscriberCount() == 1 })
	ts.dispatcher.Notify(context.Background(), domain.ChannelReady{UserChannelID: 7})

	line, err := bufio.NewReader(resp.Body).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	ev, err := domain.UnmarshalEvent(line)
	if err != nil {
		t.Fatalf("UnmarshalEvent failed: %v", err)
	}
	if ready, ok := ev.(domain.ChannelReady); !ok || ready.UserChannelID != 7 {
		t.Errorf("unexpected event %#v", ev)
	}

	cancel()
	waitFor(t, func() bool { return ts.dispatcher.SubscriberCount() == 0 })
}
