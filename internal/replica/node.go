package replica

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/ethwar/arena/internal/log"
	"github.com/ethwar/arena/pkg/types"
)

const (
	// presenceInterval is how often a peer re-announces itself.
	presenceInterval = 2 * time.Second

	// presenceExpiry is how long a silent peer stays on the roster.
	presenceExpiry = 10 * time.Second

	// peerConnectTimeout bounds a single dial to a discovered peer.
	peerConnectTimeout = 5 * time.Second

	// maxMessageSize caps a gossip message. Room state is tiny; anything
	// near this limit is garbage.
	maxMessageSize = 64 * 1024
)

// Config holds room replication settings for a Node.
type Config struct {
	ListenAddr string
	Port       int
	Room       string   // room code, part of every topic name
	Creator    bool     // this peer created the room and acts as host
	Seeds      []string // optional multiaddrs to dial directly
	DataDir    string   // persists the libp2p identity (empty = ephemeral)
}

// setEnvelope is the wire format for scalar writes.
type setEnvelope struct {
	Slot   string `json:"slot"`
	Value  []byte `json:"value"`
	Millis int64  `json:"millis"`
	Writer string `json:"writer"`
}

// appendEnvelope is the wire format for list appends.
type appendEnvelope struct {
	Slot string `json:"slot"`
	Item []byte `json:"item"`
}

// presenceEnvelope is the wire format for roster announcements.
type presenceEnvelope struct {
	State  types.PlayerState `json:"state"`
	Millis int64             `json:"millis"`
}

// Node replicates room state over libp2p GossipSub. One Node joins exactly
// one room; three topics carry list appends, scalar writes, and presence.
type Node struct {
	cfg    Config
	state  *Memory
	ctx    context.Context
	cancel context.CancelFunc

	host   host.Host
	pubsub *pubsub.PubSub

	topicRecords  *pubsub.Topic
	topicState    *pubsub.Topic
	topicPresence *pubsub.Topic
	subRecords    *pubsub.Subscription
	subState      *pubsub.Subscription
	subPresence   *pubsub.Subscription

	mu       sync.Mutex
	lastSeen map[string]time.Time
	self     types.PlayerState
	hasSelf  bool

	wg sync.WaitGroup
}

// NewNode creates a Node for a room. Start must be called before use.
func NewNode(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: make(map[string]time.Time),
	}
}

// rendezvous is the mDNS namespace. Scoping it by room code keeps peers of
// different rooms from dialing each other.
func (n *Node) rendezvous() string {
	return "arena/" + n.cfg.Room
}

func (n *Node) topicName(kind string) string {
	return fmt.Sprintf("arena/%s/%s", n.cfg.Room, kind)
}

// Start brings up the libp2p host, joins the room topics, and begins the
// presence loop.
func (n *Node) Start() error {
	listen, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", n.cfg.ListenAddr, n.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen addr: %w", err)
	}

	opts := []libp2p.Option{libp2p.ListenAddrs(listen)}
	if n.cfg.DataDir != "" {
		privKey, err := loadOrCreateIdentity(n.cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h
	n.state = NewMemory(h.ID().String(), n.cfg.Creator)

	ps, err := pubsub.NewGossipSub(n.ctx, h,
		pubsub.WithMaxMessageSize(maxMessageSize),
	)
	if err != nil {
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	if err := n.joinTopics(); err != nil {
		h.Close()
		return err
	}

	go n.readLoop(n.subRecords, n.handleRecord)
	go n.readLoop(n.subState, n.handleState)
	go n.readLoop(n.subPresence, n.handlePresence)

	n.startMDNS()
	n.connectSeeds()

	n.wg.Add(1)
	go n.presenceLoop()

	log.Replica.Info().
		Str("room", n.cfg.Room).
		Str("peer", h.ID().String()).
		Bool("creator", n.cfg.Creator).
		Msg("joined room")
	return nil
}

func (n *Node) joinTopics() error {
	var err error
	if n.topicRecords, err = n.pubsub.Join(n.topicName("records")); err != nil {
		return fmt.Errorf("join records topic: %w", err)
	}
	if n.topicState, err = n.pubsub.Join(n.topicName("state")); err != nil {
		return fmt.Errorf("join state topic: %w", err)
	}
	if n.topicPresence, err = n.pubsub.Join(n.topicName("presence")); err != nil {
		return fmt.Errorf("join presence topic: %w", err)
	}
	if n.subRecords, err = n.topicRecords.Subscribe(); err != nil {
		return fmt.Errorf("subscribe records: %w", err)
	}
	if n.subState, err = n.topicState.Subscribe(); err != nil {
		return fmt.Errorf("subscribe state: %w", err)
	}
	if n.subPresence, err = n.topicPresence.Subscribe(); err != nil {
		return fmt.Errorf("subscribe presence: %w", err)
	}
	return nil
}

func (n *Node) readLoop(sub *pubsub.Subscription, handler func(peer.ID, []byte)) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return // Context cancelled.
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue // Skip own messages.
		}
		handler(msg.ReceivedFrom, msg.Data)
	}
}

func (n *Node) handleRecord(from peer.ID, data []byte) {
	var env appendEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Replica.Debug().Err(err).Str("peer", from.String()).Msg("bad record message")
		return
	}
	n.state.ApplyRemoteAppend(env.Slot, env.Item)
}

func (n *Node) handleState(from peer.ID, data []byte) {
	var env setEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Replica.Debug().Err(err).Str("peer", from.String()).Msg("bad state message")
		return
	}
	n.state.ApplyRemoteSet(env.Slot, env.Value, env.Millis, env.Writer)
}

func (n *Node) handlePresence(from peer.ID, data []byte) {
	var env presenceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Replica.Debug().Err(err).Str("peer", from.String()).Msg("bad presence message")
		return
	}
	// The sender owns its own roster entry, whatever peer ID it claims.
	env.State.PeerID = from.String()

	n.mu.Lock()
	n.lastSeen[env.State.PeerID] = time.Now()
	n.mu.Unlock()

	n.state.ApplyRemoteState(env.State)
}

// presenceLoop re-announces this peer and expires silent ones.
func (n *Node) presenceLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.announceSelf()
			n.expireSilent()
		}
	}
}

func (n *Node) announceSelf() {
	n.mu.Lock()
	st, ok := n.self, n.hasSelf
	n.mu.Unlock()
	if !ok {
		return
	}

	env := presenceEnvelope{State: st, Millis: time.Now().UnixMilli()}
	data, err := json.Marshal(&env)
	if err != nil {
		return
	}
	_ = n.topicPresence.Publish(n.ctx, data)
}

func (n *Node) expireSilent() {
	cutoff := time.Now().Add(-presenceExpiry)

	n.mu.Lock()
	var gone []string
	for id, seen := range n.lastSeen {
		if seen.Before(cutoff) {
			gone = append(gone, id)
			delete(n.lastSeen, id)
		}
	}
	n.mu.Unlock()

	for _, id := range gone {
		log.Replica.Info().Str("peer", id).Msg("peer silent, dropping from roster")
		n.state.DropPeer(id)
	}
}

// --- Store ---

func (n *Node) Get(slot string) ([]byte, bool) {
	return n.state.Get(slot)
}

func (n *Node) Set(slot string, value []byte) error {
	millis := time.Now().UnixMilli()
	n.state.ApplyRemoteSet(slot, value, millis, n.host.ID().String())

	env := setEnvelope{Slot: slot, Value: value, Millis: millis, Writer: n.host.ID().String()}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("marshal state write: %w", err)
	}
	return n.topicState.Publish(n.ctx, data)
}

func (n *Node) Append(slot string, item []byte) error {
	n.state.ApplyRemoteAppend(slot, item)

	env := appendEnvelope{Slot: slot, Item: item}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return n.topicRecords.Publish(n.ctx, data)
}

func (n *Node) List(slot string) [][]byte {
	return n.state.List(slot)
}

func (n *Node) Players() []types.PlayerState {
	return n.state.Players()
}

// PublishState records this peer's state and announces it immediately. The
// presence loop keeps re-announcing it afterwards.
func (n *Node) PublishState(st types.PlayerState) error {
	st.PeerID = n.host.ID().String()
	st.Host = n.cfg.Creator

	n.mu.Lock()
	n.self = st
	n.hasSelf = true
	n.mu.Unlock()

	if err := n.state.PublishState(st); err != nil {
		return err
	}
	n.announceSelf()
	return nil
}

func (n *Node) AmIHost() bool {
	return n.cfg.Creator
}

func (n *Node) Watch() <-chan Event {
	return n.state.Watch()
}

// Close leaves the room.
func (n *Node) Close() error {
	n.cancel()
	if n.subRecords != nil {
		n.subRecords.Cancel()
	}
	if n.subState != nil {
		n.subState.Cancel()
	}
	if n.subPresence != nil {
		n.subPresence.Cancel()
	}
	n.wg.Wait()
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// ID returns this peer's ID (empty before Start).
func (n *Node) ID() string {
	if n.host == nil {
		return ""
	}
	return n.host.ID().String()
}

// Addrs returns the full multiaddrs of this peer, usable as seeds.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// --- Discovery ---

// discoveryNotifee handles mDNS peer discovery notifications.
type discoveryNotifee struct {
	node *Node
}

func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.node.host.ID() {
		return // Ignore self.
	}

	ctx, cancel := context.WithTimeout(d.node.ctx, peerConnectTimeout)
	defer cancel()

	if err := d.node.host.Connect(ctx, pi); err == nil {
		log.Replica.Debug().Str("peer", pi.ID.String()).Msg("connected via mdns")
	}
}

func (n *Node) startMDNS() {
	svc := mdns.NewMdnsService(n.host, n.rendezvous(), &discoveryNotifee{node: n})
	// mDNS failure is non-fatal.
	_ = svc.Start()
}

func (n *Node) connectSeeds() {
	for _, addr := range n.cfg.Seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.Replica.Warn().Str("addr", addr).Err(err).Msg("bad seed address")
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		err = n.host.Connect(ctx, *info)
		cancel()
		if err != nil {
			log.Replica.Warn().Str("peer", info.ID.String()).Err(err).Msg("seed connect failed")
		}
	}
}

// loadOrCreateIdentity loads a persisted libp2p identity key from dataDir,
// or generates a new one and saves it. This keeps the peer ID stable across
// restarts, which keeps last-writer-wins ties stable too.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "node.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}

	return priv, nil
}
