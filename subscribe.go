package profilecache

import "sync"

// subscriberBuffer is the number of pending changes kept per subscriber.
const subscriberBuffer = 16

type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Region
}

func newSubscribers() subscribers {
	return subscribers{subs: make(map[int]chan Region)}
}

// Subscribe returns a channel receiving the name of every region whose state changed,
// and a function ending the subscription and closing the channel.
// Changes are dropped for subscribers that do not keep up.
func (p *ProfileCache) Subscribe() (<-chan Region, func()) {
	s := &p.subs
	ch := make(chan Region, subscriberBuffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (p *ProfileCache) publish(r Region) {
	s := &p.subs
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- r:
		default:
			p.log.Trace().Str("region", string(r)).Msg("Subscriber not keeping up, change dropped")
		}
	}
}
