// Package simnode is an in-process node.Node for regtest-style development and
// tests. It keeps peers, channels and payments in memory and produces the same
// event sequence a real node would, without touching the network or a chain.
package simnode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/infra/node"
)

const seedFile = "seed"

// Options tune the simulation.
type Options struct {
	// InitialBalanceSats is the confirmed on-chain balance at startup.
	InitialBalanceSats uint64
	// ConfirmDelay is how long a new channel stays pending. Zero makes it
	// ready right after the pending event.
	ConfirmDelay time.Duration
}

// DefaultOptions returns the options used by the serve command.
func DefaultOptions() Options {
	return Options{
		InitialBalanceSats: 100_000_000,
		ConfirmDelay:       2 * time.Second,
	}
}

// Node is the simulated node.
type Node struct {
	cfg  node.BuildConfig
	opts Options
	log  *slog.Logger

	seed [32]byte
	id   domain.NodeID

	mu          sync.Mutex
	running     bool
	balanceSats uint64
	peers       []*domain.PeerDetails
	channels    []*domain.ChannelDetails
	nextUserID  uint64
	invoices    map[domain.PaymentHash]*invoiceRecord
	payments    map[domain.PaymentHash]paymentStatus
	timers      []*time.Timer

	queue   []domain.Event
	offered bool
	ready   chan struct{}
}

var (
	_ node.Node          = (*Node)(nil)
	_ node.EventNotifier = (*Node)(nil)
)

// New builds a node from cfg. The identity is derived from the mnemonic when
// one is given, otherwise from a seed persisted in the storage directory.
func New(cfg node.BuildConfig, opts Options, log *slog.Logger) (*Node, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StorageDir == "" {
		return nil, fmt.Errorf("%w: storage dir is required", domain.ErrNodeStart)
	}
	for _, dir := range []string{cfg.StorageDir, cfg.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", domain.ErrNodeStart, dir, err)
		}
	}

	seed, err := loadSeed(cfg)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:         cfg,
		opts:        opts,
		log:         log.With("component", "simnode"),
		seed:        seed,
		id:          deriveNodeID(seed),
		balanceSats: opts.InitialBalanceSats,
		invoices:    make(map[domain.PaymentHash]*invoiceRecord),
		payments:    make(map[domain.PaymentHash]paymentStatus),
		ready:       make(chan struct{}, 1),
	}
	return n, nil
}

func loadSeed(cfg node.BuildConfig) ([32]byte, error) {
	if words := strings.Fields(cfg.Mnemonic); len(words) > 0 {
		return sha256.Sum256([]byte("lnbridge-seed:" + strings.Join(words, " "))), nil
	}

	var seed [32]byte
	path := filepath.Join(cfg.StorageDir, seedFile)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil || len(b) != len(seed) {
			return seed, fmt.Errorf("%w: corrupt seed file %s", domain.ErrNodeStart, path)
		}
		copy(seed[:], b)
		return seed, nil
	case os.IsNotExist(err):
		if _, err := rand.Read(seed[:]); err != nil {
			return seed, fmt.Errorf("%w: generate seed: %v", domain.ErrNodeStart, err)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(seed[:])), 0o600); err != nil {
			return seed, fmt.Errorf("%w: persist seed: %v", domain.ErrNodeStart, err)
		}
		return seed, nil
	default:
		return seed, fmt.Errorf("%w: read seed: %v", domain.ErrNodeStart, err)
	}
}

func deriveNodeID(seed [32]byte) domain.NodeID {
	sum := sha256.Sum256(append(seed[:], []byte("node-key")...))
	var id domain.NodeID
	id[0] = 0x02 | (sum[31] & 0x01)
	copy(id[1:], sum[:])
	return id
}

// Start validates the chain source and marks the node running.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return domain.NewNodeError(domain.NodeErrAlreadyRunning, "node is already running")
	}
	u, err := url.Parse(n.cfg.EsploraURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewNodeError(domain.NodeErrConnectionFailed, "invalid esplora server %q", n.cfg.EsploraURL)
	}

	n.running = true
	n.log.Info("Node started",
		"node_id", n.id,
		"network", n.cfg.Network,
		"listen", n.cfg.ListeningAddress,
		"esplora", n.cfg.EsploraURL,
	)
	return nil
}

// Stop cancels pending confirmations and marks the node stopped.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return domain.NewNodeError(domain.NodeErrNotRunning, "node is not running")
	}
	for _, t := range n.timers {
		t.Stop()
	}
	n.timers = nil
	n.running = false
	n.log.Info("Node stopped")
	return nil
}

// NodeID returns the node's public key.
func (n *Node) NodeID() domain.NodeID {
	return n.id
}

// NextEvent returns the head of the event queue without removing it.
func (n *Node) NextEvent() (domain.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil, domain.NewNodeError(domain.NodeErrNotRunning, "node is not running")
	}
	if len(n.queue) == 0 {
		return nil, nil
	}
	n.offered = true
	return n.queue[0], nil
}

// EventHandled removes the event last returned by NextEvent.
func (n *Node) EventHandled() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.offered {
		return nil
	}
	n.queue = n.queue[1:]
	n.offered = false
	return nil
}

// EventReady is signalled whenever an event is queued.
func (n *Node) EventReady() <-chan struct{} {
	return n.ready
}

// Pending returns the number of unacknowledged events.
func (n *Node) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// enqueue must be called with mu held.
func (n *Node) enqueue(ev domain.Event) {
	n.queue = append(n.queue, ev)
	n.log.Debug("Event queued", "kind", ev.Kind(), "pending", len(n.queue))
	select {
	case n.ready <- struct{}{}:
	default:
	}
}

// checkRunning must be called with mu held.
func (n *Node) checkRunning() error {
	if !n.running {
		return domain.NewNodeError(domain.NodeErrNotRunning, "node is not running")
	}
	return nil
}

func randomBytes(dst []byte) {
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(dst)
}
