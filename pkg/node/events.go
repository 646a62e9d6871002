package node

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/ZentaChain/zentalk-groupchat/pkg/group"
	"github.com/ZentaChain/zentalk-groupchat/pkg/session"
)

// DefaultEventLogSize is the number of events kept for polling clients
const DefaultEventLogSize = 1024

// KindRequest marks a request envelope in the event log
const KindRequest = "request"

// LoggedEvent is one application event as exposed to API clients
type LoggedEvent struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Group  int       `json:"group"`
	Kind   string    `json:"kind"`
	Peer   uint32    `json:"peer"`
	Target uint32    `json:"target,omitempty"`
	Self   bool      `json:"self,omitempty"`
	Data   string    `json:"data,omitempty"`
	Peers  []uint32  `json:"peers,omitempty"`
}

// EventLog is a bounded ring of events. It is safe for concurrent use.
type EventLog struct {
	mu      sync.RWMutex
	entries []LoggedEvent
	start   int
	size    int
	nextSeq uint64
}

// NewEventLog creates a log holding at most size events
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	return &EventLog{
		entries: make([]LoggedEvent, size),
		nextSeq: 1,
	}
}

// Append stores ev, assigning the next sequence number
func (l *EventLog) Append(ev LoggedEvent) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Seq = l.nextSeq
	l.nextSeq++

	if l.size < len(l.entries) {
		l.entries[(l.start+l.size)%len(l.entries)] = ev
		l.size++
	} else {
		l.entries[l.start] = ev
		l.start = (l.start + 1) % len(l.entries)
	}
	return ev.Seq
}

// Since returns up to limit events with a sequence number above since,
// oldest first. A limit of zero returns everything retained.
func (l *EventLog) Since(since uint64, limit int) []LoggedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []LoggedEvent
	for i := 0; i < l.size; i++ {
		ev := l.entries[(l.start+i)%len(l.entries)]
		if ev.Seq <= since {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// LastSeq returns the sequence number of the newest event, or zero
func (l *EventLog) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq - 1
}

func loggedGroupEvent(groupNumber int, ev group.Event) LoggedEvent {
	out := LoggedEvent{Group: groupNumber, Kind: ev.Kind().String()}

	switch e := ev.(type) {
	case group.MessageEvent:
		out.Peer = uint32(e.Peer)
		out.Data = string(e.Message)
	case group.PrivateMessageEvent:
		out.Peer = uint32(e.Peer)
		out.Data = string(e.Message)
	case group.OpActionEvent:
		out.Peer = uint32(e.Source)
		out.Target = uint32(e.Target)
		out.Self = e.Self
		out.Data = e.Type.String()
	case group.NickChangeEvent:
		out.Peer = uint32(e.Peer)
		out.Data = string(e.Nick)
	case group.TopicChangeEvent:
		out.Peer = uint32(e.Peer)
		out.Data = string(e.Topic)
	case group.PeerJoinEvent:
		out.Peer = uint32(e.Peer)
	case group.SelfJoinEvent:
		out.Self = true
		for _, p := range e.Peers {
			out.Peers = append(out.Peers, uint32(p))
		}
	case group.PeerExitEvent:
		out.Peer = uint32(e.Peer)
		out.Data = string(e.PartMessage)
	}
	return out
}

func loggedRequest(ev session.RequestEvent) LoggedEvent {
	return LoggedEvent{
		Group: -1,
		Kind:  KindRequest,
		Peer:  uint32(ev.RequestID),
		Data:  hex.EncodeToString(ev.From[:]),
	}
}
