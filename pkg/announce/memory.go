package announce

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// MemoryBook keeps the newest verified announcement of every member in memory
type MemoryBook struct {
	mu    sync.Mutex
	clock clock.Clock
	chats map[crypto.ExtPublicKey]map[crypto.ExtPublicKey]*Announcement
}

// NewMemoryBook creates an empty in-memory address book
func NewMemoryBook(clk clock.Clock) *MemoryBook {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryBook{
		clock: clk,
		chats: make(map[crypto.ExtPublicKey]map[crypto.ExtPublicKey]*Announcement),
	}
}

// Publish stores a verified announcement unless a newer one is already known
func (b *MemoryBook) Publish(a *Announcement) error {
	if err := a.Verify(b.clock.Now()); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.chats[a.ChatKey]
	if !ok {
		members = make(map[crypto.ExtPublicKey]*Announcement)
		b.chats[a.ChatKey] = members
	}
	if old, ok := members[a.PublicKey]; ok && old.Timestamp >= a.Timestamp {
		return nil
	}
	members[a.PublicKey] = a
	return nil
}

// Lookup returns the freshest members announced for a chat, newest first
func (b *MemoryBook) Lookup(chatKey crypto.ExtPublicKey) []Entry {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	members := b.chats[chatKey]
	fresh := make([]*Announcement, 0, len(members))
	for pk, a := range members {
		if a.Expired(now) {
			delete(members, pk)
			continue
		}
		fresh = append(fresh, a)
	}
	if len(members) == 0 {
		delete(b.chats, chatKey)
	}

	return entriesOf(fresh)
}

// Forget drops every announcement of a chat
func (b *MemoryBook) Forget(chatKey crypto.ExtPublicKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chats, chatKey)
}

// entriesOf sorts newest first and converts up to MaxEntriesPerChat records
func entriesOf(anns []*Announcement) []Entry {
	sort.Slice(anns, func(i, j int) bool {
		if anns[i].Timestamp != anns[j].Timestamp {
			return anns[i].Timestamp > anns[j].Timestamp
		}
		return anns[i].PublicKey.String() < anns[j].PublicKey.String()
	})

	out := make([]Entry, 0, len(anns))
	for _, a := range anns {
		if len(out) == MaxEntriesPerChat {
			break
		}
		e, err := a.Entry()
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}
