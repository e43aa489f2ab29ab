package tracker

// Swarm is the set of clients that announced the same swarm id. Waiting
// clients are paired in announce order.
type Swarm struct {
	ID string

	// members maps peer ids to clients, paired or not.
	members map[string]*Client

	// waiting holds unpaired clients, oldest first.
	waiting []*Client
}

func newSwarm(id string) *Swarm {
	return &Swarm{ID: id, members: make(map[string]*Client)}
}

func (s *Swarm) has(peerID string) bool {
	_, ok := s.members[peerID]
	return ok
}

func (s *Swarm) add(c *Client) {
	s.members[c.PeerID] = c
	s.waiting = append(s.waiting, c)
}

// pair pops the two oldest waiting clients. The first one initiates.
func (s *Swarm) pair() (initiator, responder *Client, ok bool) {
	if len(s.waiting) < 2 {
		return nil, nil, false
	}
	initiator, responder = s.waiting[0], s.waiting[1]
	s.waiting = s.waiting[2:]

	initiator.partner = responder
	responder.partner = initiator
	return initiator, responder, true
}

func (s *Swarm) remove(c *Client) {
	if s.members[c.PeerID] == c {
		delete(s.members, c.PeerID)
	}
	for i, w := range s.waiting {
		if w == c {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			break
		}
	}
}

func (s *Swarm) empty() bool {
	return len(s.members) == 0
}
