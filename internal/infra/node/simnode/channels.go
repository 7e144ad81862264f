package simnode

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// ListChannels returns copies of all known channels.
func (n *Node) ListChannels() []domain.ChannelDetails {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]domain.ChannelDetails, 0, len(n.channels))
	for _, c := range n.channels {
		out = append(out, *c)
	}
	return out
}

// ListPeers returns copies of all known peers.
func (n *Node) ListPeers() []domain.PeerDetails {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]domain.PeerDetails, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, *p)
	}
	return out
}

// Connect registers the peer as connected.
func (n *Node) Connect(ctx context.Context, nodeID domain.NodeID, addr domain.SocketAddress, persist bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.connectLocked(nodeID, addr, persist)
}

func (n *Node) connectLocked(nodeID domain.NodeID, addr domain.SocketAddress, persist bool) error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	if nodeID == n.id {
		return domain.NewNodeError(domain.NodeErrConnectionFailed, "cannot connect to self")
	}
	if nodeID.IsZero() || addr == "" {
		return domain.NewNodeError(domain.NodeErrConnectionFailed, "peer id and address are required")
	}

	for _, p := range n.peers {
		if p.NodeID == nodeID {
			p.Address = addr
			p.IsConnected = true
			p.IsPersisted = p.IsPersisted || persist
			return nil
		}
	}
	n.peers = append(n.peers, &domain.PeerDetails{
		NodeID:      nodeID,
		Address:     addr,
		IsPersisted: persist,
		IsConnected: true,
	})
	n.log.Info("Peer connected", "peer", nodeID, "address", addr)
	return nil
}

// ConnectOpenChannel connects to the peer and funds a new channel from the
// on-chain balance. ChannelPending is queued at once, ChannelReady once the
// funding transaction is considered confirmed.
func (n *Node) ConnectOpenChannel(
	ctx context.Context,
	nodeID domain.NodeID,
	addr domain.SocketAddress,
	channelAmountSats uint64,
	pushToCounterpartyMsat *uint64,
	public bool,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.connectLocked(nodeID, addr, true); err != nil {
		return err
	}
	if channelAmountSats == 0 {
		return domain.NewNodeError(domain.NodeErrInvalidAmount, "channel amount must be positive")
	}
	if channelAmountSats > n.balanceSats {
		return domain.NewNodeError(domain.NodeErrInsufficientFunds,
			"channel amount %d sats exceeds balance %d sats", channelAmountSats, n.balanceSats)
	}
	var push uint64
	if pushToCounterpartyMsat != nil {
		push = *pushToCounterpartyMsat
	}
	if push > channelAmountSats*1000 {
		return domain.NewNodeError(domain.NodeErrChannelCreationFailed, "push amount exceeds channel value")
	}

	var tempID domain.ChannelID
	randomBytes(tempID[:])
	channelID := domain.ChannelID(sha256.Sum256(tempID[:]))
	fundingTxid := sha256.Sum256(channelID[:])
	fundingTxo := domain.ChannelID(fundingTxid).String() + ":0"

	n.nextUserID++
	ch := &domain.ChannelDetails{
		ChannelID:             channelID,
		CounterpartyNodeID:    nodeID,
		FundingTxo:            fundingTxo,
		ChannelValueSats:      channelAmountSats,
		UserChannelID:         n.nextUserID,
		OutboundCapacityMsat:  channelAmountSats*1000 - push,
		InboundCapacityMsat:   push,
		ConfirmationsRequired: 6,
		IsOutbound:            true,
		IsPublic:              public,
	}
	n.balanceSats -= channelAmountSats
	n.channels = append(n.channels, ch)

	n.enqueue(domain.ChannelPending{
		ChannelID:                channelID,
		UserChannelID:            ch.UserChannelID,
		FormerTemporaryChannelID: tempID,
		CounterpartyNodeID:       nodeID,
		FundingTxo:               fundingTxo,
	})
	n.log.Info("Channel opened", "channel_id", channelID, "peer", nodeID, "sats", channelAmountSats)

	if n.opts.ConfirmDelay <= 0 {
		n.markReadyLocked(channelID)
		return nil
	}
	n.timers = append(n.timers, time.AfterFunc(n.opts.ConfirmDelay, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.running {
			n.markReadyLocked(channelID)
		}
	}))
	return nil
}

func (n *Node) markReadyLocked(id domain.ChannelID) {
	ch := n.findChannelLocked(id)
	if ch == nil || ch.IsChannelReady {
		return
	}
	ch.Confirmations = ch.ConfirmationsRequired
	ch.IsChannelReady = true
	ch.IsUsable = true
	n.enqueue(domain.ChannelReady{
		ChannelID:          ch.ChannelID,
		UserChannelID:      ch.UserChannelID,
		CounterpartyNodeID: ch.CounterpartyNodeID,
	})
}

func (n *Node) findChannelLocked(id domain.ChannelID) *domain.ChannelDetails {
	for _, c := range n.channels {
		if c.ChannelID == id {
			return c
		}
	}
	return nil
}

// CloseChannel closes the channel cooperatively and settles the local balance
// back on-chain.
func (n *Node) CloseChannel(ctx context.Context, channelID domain.ChannelID, counterparty domain.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkRunning(); err != nil {
		return err
	}
	for i, c := range n.channels {
		if c.ChannelID != channelID {
			continue
		}
		if c.CounterpartyNodeID != counterparty {
			return domain.NewNodeError(domain.NodeErrChannelClosingFailed,
				"channel %s belongs to a different counterparty", channelID)
		}
		n.channels = append(n.channels[:i], n.channels[i+1:]...)
		n.balanceSats += c.OutboundCapacityMsat / 1000
		n.enqueue(domain.ChannelClosed{
			ChannelID:          c.ChannelID,
			UserChannelID:      c.UserChannelID,
			CounterpartyNodeID: c.CounterpartyNodeID,
		})
		n.log.Info("Channel closed", "channel_id", channelID, "peer", counterparty)
		return nil
	}
	return domain.NewNodeError(domain.NodeErrChannelClosingFailed, "unknown channel %s", channelID)
}

// NewOnchainAddress returns a fresh segwit-looking address for the network.
func (n *Node) NewOnchainAddress(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkRunning(); err != nil {
		return "", err
	}
	prefix := n.cfg.Network.AddressPrefix()
	if prefix == "" {
		return "", domain.NewNodeError(domain.NodeErrWalletOperationFailed, "unsupported network %q", n.cfg.Network)
	}
	var program [20]byte
	randomBytes(program[:])
	return prefix + encodeBase32(program[:]), nil
}

// BalanceSats returns the simulated on-chain balance.
func (n *Node) BalanceSats() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balanceSats
}

// encodeBase32 packs data into 5-bit groups over the bech32 alphabet.
func encodeBase32(data []byte) string {
	out := make([]byte, 0, (len(data)*8+4)/5)
	var acc, bits uint
	for _, b := range data {
		acc = acc<<8 | uint(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, bech32Charset[(acc>>bits)&31])
		}
	}
	if bits > 0 {
		out = append(out, bech32Charset[(acc<<(5-bits))&31])
	}
	return string(out)
}

// decodeBase32 reverses encodeBase32 for outputs of exactly size bytes.
func decodeBase32(s string, size int) ([]byte, bool) {
	out := make([]byte, 0, size)
	var acc, bits uint
	for i := 0; i < len(s); i++ {
		v := indexCharset(s[i])
		if v < 0 {
			return nil, false
		}
		acc = acc<<5 | uint(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
	}
	if len(out) != size {
		return nil, false
	}
	return out, true
}

func indexCharset(c byte) int {
	for i := 0; i < len(bech32Charset); i++ {
		if bech32Charset[i] == c {
			return i
		}
	}
	return -1
}
