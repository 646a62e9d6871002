package announce

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// ProtocolPrefix separates the announcement DHT from public Kademlia networks
const ProtocolPrefix = protocol.ID("/zentalk-gc")

const (
	defaultFetchInterval = 10 * time.Second
	dhtRequestTimeout    = 15 * time.Second
)

// Store is the local cache a DHTBook answers lookups from
type Store interface {
	Publish(a *Announcement) error
	Lookup(chatKey crypto.ExtPublicKey) []Entry
}

// DHTConfig configures a DHTBook
type DHTConfig struct {
	ListenAddrs   []string // libp2p listen multiaddrs, e.g. /ip4/0.0.0.0/tcp/4001
	Bootstrap     []string // /ip4/.../tcp/.../p2p/<peer id>
	Cache         Store
	Clock         clock.Clock
	FetchInterval time.Duration
}

// DHTBook publishes announcements to a libp2p Kademlia DHT and resolves chat
// members from it. Neither call blocks: lookups are answered from the local
// cache while DHT reads and writes run in the background.
type DHTBook struct {
	host  host.Host
	dht   *dht.IpfsDHT
	cache Store
	clock clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	fetched       map[crypto.ExtPublicKey]time.Time
	fetchInterval time.Duration
}

// NewDHTBook starts a libp2p host and DHT and connects to the bootstrap peers
func NewDHTBook(ctx context.Context, cfg DHTConfig) (*DHTBook, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryBook(cfg.Clock)
	}
	if cfg.FetchInterval == 0 {
		cfg.FetchInterval = defaultFetchInterval
	}
	if len(cfg.ListenAddrs) == 0 {
		cfg.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	kad, err := dht.New(ctx, h,
		dht.Mode(dht.ModeServer),
		dht.ProtocolPrefix(ProtocolPrefix),
		dht.NamespacedValidator(Namespace, Validator{Clock: cfg.Clock}),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to create DHT: %w", err)
	}

	bookCtx, cancel := context.WithCancel(ctx)
	b := &DHTBook{
		host:          h,
		dht:           kad,
		cache:         cfg.Cache,
		clock:         cfg.Clock,
		ctx:           bookCtx,
		cancel:        cancel,
		fetched:       make(map[crypto.ExtPublicKey]time.Time),
		fetchInterval: cfg.FetchInterval,
	}

	if len(cfg.Bootstrap) > 0 {
		b.connectBootstrap(cfg.Bootstrap)
	}
	if err := kad.Bootstrap(bookCtx); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to bootstrap DHT: %w", err)
	}

	log.Printf("✅ Announce DHT started as %s", h.ID())
	return b, nil
}

// connectBootstrap dials every bootstrap peer it can parse
func (b *DHTBook) connectBootstrap(peers []string) int {
	connected := 0
	for _, peerStr := range peers {
		maddr, err := multiaddr.NewMultiaddr(peerStr)
		if err != nil {
			log.Printf("⚠️  Invalid bootstrap peer address %s: %v", peerStr, err)
			continue
		}

		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			log.Printf("⚠️  Failed to parse peer info from %s: %v", peerStr, err)
			continue
		}

		ctx, cancel := context.WithTimeout(b.ctx, dhtRequestTimeout)
		err = b.host.Connect(ctx, *info)
		cancel()
		if err != nil {
			log.Printf("⚠️  Failed to connect to bootstrap peer %s: %v", info.ID, err)
			continue
		}

		log.Printf("Connected to bootstrap peer: %s", info.ID)
		connected++
	}
	return connected
}

// Publish caches the announcement and writes it to the DHT in the background
func (b *DHTBook) Publish(a *Announcement) error {
	if err := b.cache.Publish(a); err != nil {
		return err
	}
	if b.ctx.Err() != nil {
		return b.ctx.Err()
	}

	value, err := a.Encode()
	if err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.put(RecordKey(a.ChatKey, SlotOf(a.PublicKey)), value)
	}()
	return nil
}

func (b *DHTBook) put(key string, value []byte) {
	operation := func() error {
		ctx, cancel := context.WithTimeout(b.ctx, dhtRequestTimeout)
		defer cancel()

		err := b.dht.PutValue(ctx, key, value)
		if b.ctx.Err() != nil {
			return backoff.Permanent(b.ctx.Err())
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), b.ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		log.Printf("⚠️  DHT publish of %s failed: %v", key, err)
	}
}

// Lookup returns cached members and refreshes the chat from the DHT in the
// background, at most once per fetch interval
func (b *DHTBook) Lookup(chatKey crypto.ExtPublicKey) []Entry {
	entries := b.cache.Lookup(chatKey)
	b.maybeFetch(chatKey)
	return entries
}

func (b *DHTBook) maybeFetch(chatKey crypto.ExtPublicKey) {
	if b.ctx.Err() != nil {
		return
	}

	now := b.clock.Now()
	b.mu.Lock()
	if last, ok := b.fetched[chatKey]; ok && now.Sub(last) < b.fetchInterval {
		b.mu.Unlock()
		return
	}
	b.fetched[chatKey] = now
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.fetch(chatKey)
	}()
}

// fetch reads every slot of a chat and caches what verifies
func (b *DHTBook) fetch(chatKey crypto.ExtPublicKey) int {
	found := 0
	for slot := 0; slot < Slots; slot++ {
		ctx, cancel := context.WithTimeout(b.ctx, dhtRequestTimeout)
		value, err := b.dht.GetValue(ctx, RecordKey(chatKey, slot))
		cancel()
		if err != nil {
			continue
		}

		a, err := Decode(value)
		if err != nil {
			continue
		}
		if a.ChatKey != chatKey {
			continue
		}
		if err := b.cache.Publish(a); err != nil {
			continue
		}
		found++
	}
	return found
}

// ID returns the libp2p peer ID of the DHT host
func (b *DHTBook) ID() peer.ID {
	return b.host.ID()
}

// Addrs returns the full dialable addresses of the DHT host, for use as bootstrap peers
func (b *DHTBook) Addrs() []string {
	var out []string
	for _, a := range b.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, b.host.ID()))
	}
	return out
}

// PeerCount returns the number of connected DHT peers
func (b *DHTBook) PeerCount() int {
	return len(b.host.Network().Peers())
}

// Close stops background work and shuts down the DHT and host
func (b *DHTBook) Close() error {
	b.cancel()
	b.wg.Wait()

	if err := b.dht.Close(); err != nil {
		log.Printf("⚠️  Error closing DHT: %v", err)
	}
	if err := b.host.Close(); err != nil {
		log.Printf("⚠️  Error closing host: %v", err)
	}
	return nil
}
