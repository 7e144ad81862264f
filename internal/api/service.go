// Package api exposes the node over gRPC and a JSON gateway for browsers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/dispatch"
	"github.com/vietddude/lnbridge/internal/infra/storage"
)

// Backend is the node control surface the API forwards to.
type Backend interface {
	NodeID() domain.NodeID
	ListChannels() []domain.ChannelDetails
	ListPeers() []domain.PeerDetails
	ConnectPeer(ctx context.Context, nodeID domain.NodeID, addr domain.SocketAddress, persist bool) error
	OpenChannel(ctx context.Context, req domain.OpenChannelRequest) error
	CloseChannel(ctx context.Context, channelID domain.ChannelID) error
	NewOnchainAddress(ctx context.Context) (string, error)
	CreateInvoice(ctx context.Context, amountMsat *uint64, description string, expirySecs uint32) (domain.Invoice, error)
	PayInvoice(ctx context.Context, invoice string, amountMsat *uint64) (domain.PaymentHash, error)
	SendKeysend(ctx context.Context, amountMsat uint64, destination domain.NodeID) (domain.PaymentHash, error)
	TriggerPaymentEvent(ctx context.Context, paymentHash string) (domain.PaymentReceived, error)
}

// Service implements NodeServer.
type Service struct {
	backend     Backend
	dispatcher  *dispatch.Dispatcher
	journal     storage.Journal
	subCapacity int
	log         *slog.Logger
}

// NewService creates the API service. journal may be nil, in which case
// ListEvents returns Unimplemented.
func NewService(backend Backend, d *dispatch.Dispatcher, journal storage.Journal, subCapacity int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		backend:     backend,
		dispatcher:  d,
		journal:     journal,
		subCapacity: subCapacity,
		log:         log.With("component", "api"),
	}
}

type connectPeerRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
	Persist bool   `json:"persist"`
}

type openChannelRequest struct {
	NodeID     string  `json:"node_id"`
	Address    string  `json:"address"`
	AmountSats uint64  `json:"amount_sats"`
	PushMsat   *uint64 `json:"push_msat"`
	Public     bool    `json:"public"`
}

type closeChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type createInvoiceRequest struct {
	AmountMsat  *uint64 `json:"amount_msat"`
	Description string  `json:"description"`
	ExpirySecs  uint32  `json:"expiry_secs"`
}

type payInvoiceRequest struct {
	Invoice    string  `json:"invoice"`
	AmountMsat *uint64 `json:"amount_msat"`
}

type keysendRequest struct {
	NodeID     string `json:"node_id"`
	AmountMsat uint64 `json:"amount_msat"`
}

type triggerEventRequest struct {
	PaymentHash string `json:"payment_hash"`
}

type listEventsRequest struct {
	Kind  string `json:"kind"`
	Since string `json:"since"`
	Limit int    `json:"limit"`
}

type subscribeRequest struct {
	Name  string   `json:"name"`
	Kinds []string `json:"kinds"`
}

type paymentResponse struct {
	PaymentHash domain.PaymentHash `json:"payment_hash"`
}

func (s *Service) NodeID(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return encode(map[string]domain.NodeID{"node_id": s.backend.NodeID()})
}

func (s *Service) ListChannels(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	channels := s.backend.ListChannels()
	if channels == nil {
		channels = []domain.ChannelDetails{}
	}
	return encode(map[string]any{"channels": channels})
}

func (s *Service) ListPeers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	peers := s.backend.ListPeers()
	if peers == nil {
		peers = []domain.PeerDetails{}
	}
	return encode(map[string]any{"peers": peers})
}

func (s *Service) ConnectPeer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in connectPeerRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	id, err := domain.ParseNodeID(in.NodeID)
	if err != nil {
		return nil, err
	}
	addr, err := domain.ParseSocketAddress(in.Address)
	if err != nil {
		return nil, err
	}
	if err := s.backend.ConnectPeer(ctx, id, addr, in.Persist); err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}

func (s *Service) OpenChannel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in openChannelRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	id, err := domain.ParseNodeID(in.NodeID)
	if err != nil {
		return nil, err
	}
	var addr domain.SocketAddress
	if in.Address != "" {
		if addr, err = domain.ParseSocketAddress(in.Address); err != nil {
			return nil, err
		}
	}

	err = s.backend.OpenChannel(ctx, domain.OpenChannelRequest{
		NodeID:     id,
		Address:    addr,
		AmountSats: in.AmountSats,
		PushMsat:   in.PushMsat,
		Public:     in.Public,
	})
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}

func (s *Service) CloseChannel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in closeChannelRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	id, err := domain.ParseChannelID(in.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := s.backend.CloseChannel(ctx, id); err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}

func (s *Service) NewOnchainAddress(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	addr, err := s.backend.NewOnchainAddress(ctx)
	if err != nil {
		return nil, err
	}
	return encode(map[string]string{"address": addr})
}

func (s *Service) CreateInvoice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in createInvoiceRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	inv, err := s.backend.CreateInvoice(ctx, in.AmountMsat, in.Description, in.ExpirySecs)
	if err != nil {
		return nil, err
	}
	return encode(inv)
}

func (s *Service) PayInvoice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in payInvoiceRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Invoice == "" {
		return nil, fmt.Errorf("%w: invoice is required", domain.ErrInvalidArgument)
	}
	hash, err := s.backend.PayInvoice(ctx, in.Invoice, in.AmountMsat)
	if err != nil {
		return nil, err
	}
	return encode(paymentResponse{PaymentHash: hash})
}

func (s *Service) SendKeysend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in keysendRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	id, err := domain.ParseNodeID(in.NodeID)
	if err != nil {
		return nil, err
	}
	hash, err := s.backend.SendKeysend(ctx, in.AmountMsat, id)
	if err != nil {
		return nil, err
	}
	return encode(paymentResponse{PaymentHash: hash})
}

// TriggerEvent synthesizes a payment-received event. Test-only.
func (s *Service) TriggerEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in triggerEventRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	ev, err := s.backend.TriggerPaymentEvent(ctx, in.PaymentHash)
	if err != nil {
		return nil, err
	}
	return encode(ev)
}

func (s *Service) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.journal == nil {
		return nil, errJournalDisabled
	}
	var in listEventsRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	filter := storage.ListFilter{Kind: domain.EventKind(in.Kind), Limit: in.Limit}
	if in.Since != "" {
		since, err := time.Parse(time.RFC3339, in.Since)
		if err != nil {
			return nil, fmt.Errorf("%w: since: %v", domain.ErrInvalidArgument, err)
		}
		filter.Since = since
	}

	records, err := s.journal.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []storage.Record{}
	}
	return encode(map[string]any{"events": records})
}

// subscribe registers a subscriber for the lifetime of ctx and forwards
// matching events to send.
func (s *Service) subscribe(ctx context.Context, req *structpb.Struct, send func(domain.Event) error) error {
	var in subscribeRequest
	if err := decode(req, &in); err != nil {
		return err
	}
	kinds := make(map[domain.EventKind]bool, len(in.Kinds))
	for _, k := range in.Kinds {
		kinds[domain.EventKind(k)] = true
	}
	name := in.Name
	if name == "" {
		name = "api-stream"
	}

	sub := dispatch.NewSubscriber(name, s.subCapacity)
	s.dispatcher.Subscribe(sub)
	defer func() {
		// the dispatcher may already have dropped a slow stream
		_ = s.dispatcher.Unsubscribe(sub)
	}()
	s.log.Debug("Event stream opened", "subscriber", name, "kinds", in.Kinds)

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Event stream closed", "subscriber", name)
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return errSubscriptionDropped
			}
			if len(kinds) > 0 && !kinds[ev.Kind()] {
				continue
			}
			if err := send(ev); err != nil {
				return err
			}
		}
	}
}
