package group

import (
	"container/list"
	"time"
)

// GroupCloseConnections bounds the close-peer set
const GroupCloseConnections = 6

// closeSet is the bounded subset of peers used for liveness pings.
// Front is the most recently responsive member.
type closeSet struct {
	members *list.List
	index   map[PeerNumber]*list.Element
	size    int
}

func newCloseSet(size int) *closeSet {
	return &closeSet{
		members: list.New(),
		index:   make(map[PeerNumber]*list.Element),
		size:    size,
	}
}

// contains reports whether peer is in the set
func (s *closeSet) contains(peer PeerNumber) bool {
	_, ok := s.index[peer]
	return ok
}

// touch moves a member to the front after it responded
func (s *closeSet) touch(peer PeerNumber) {
	if e, ok := s.index[peer]; ok {
		s.members.MoveToFront(e)
	}
}

// offer adds a candidate. When the set is full the least recently responsive
// member is evicted only if the candidate responded more recently.
// Returns the evicted peer, if any, and whether the candidate was added.
func (s *closeSet) offer(peer PeerNumber, lastSeen time.Time, seen func(PeerNumber) time.Time) (PeerNumber, bool, bool) {
	if s.contains(peer) {
		return 0, false, false
	}

	if s.members.Len() < s.size {
		s.index[peer] = s.members.PushBack(peer)
		return 0, false, true
	}

	back := s.members.Back()
	worst := back.Value.(PeerNumber)
	if !lastSeen.After(seen(worst)) {
		return 0, false, false
	}

	s.members.Remove(back)
	delete(s.index, worst)
	s.index[peer] = s.members.PushBack(peer)
	return worst, true, true
}

// remove evicts a member
func (s *closeSet) remove(peer PeerNumber) bool {
	e, ok := s.index[peer]
	if !ok {
		return false
	}
	s.members.Remove(e)
	delete(s.index, peer)
	return true
}

// list returns the members, most recently responsive first
func (s *closeSet) list() []PeerNumber {
	out := make([]PeerNumber, 0, s.members.Len())
	for e := s.members.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(PeerNumber))
	}
	return out
}

func (s *closeSet) len() int {
	return s.members.Len()
}
