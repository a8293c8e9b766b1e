package events

import "sync"

// Publisher fans events out to subscribers. Publish never blocks: each
// subscriber has an unbounded queue drained by its own goroutine.
type Publisher struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewPublisher returns a publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[uint64]*Subscription)}
}

// Subscribe attaches a subscriber. It only receives events published after
// this call returns.
func (p *Publisher) Subscribe() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := newSubscription(p, p.nextID)
	p.nextID++
	if p.closed {
		sub.end()
		return sub
	}
	p.subs[sub.id] = sub
	return sub
}

// Publish enqueues ev for every current subscriber.
func (p *Publisher) Publish(ev Event) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, sub := range p.subs {
		sub.enqueue(ev)
	}
}

// Close ends every subscription after its queued events are delivered.
// Later Publish calls are dropped.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		sub.end()
		delete(p.subs, id)
	}
}

// Subscribers returns the number of attached subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, id)
}

// Subscription is one subscriber's view of the event stream.
type Subscription struct {
	id     uint64
	pub    *Publisher
	out    chan Event
	done   chan struct{}
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	ended  bool
	closed bool
}

func newSubscription(pub *Publisher, id uint64) *Subscription {
	s := &Subscription{
		id:   id,
		pub:  pub,
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Events returns the delivery channel. It is closed after Close, or after
// the publisher closes and the queue drains.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Close detaches the subscriber and drops undelivered events.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Broadcast()
	s.mu.Unlock()

	s.pub.remove(s.id)
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return
	}
	s.queue = append(s.queue, ev)
	s.cond.Signal()
}

func (s *Subscription) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.cond.Broadcast()
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.ended && !s.closed {
			s.cond.Wait()
		}
		if s.closed || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
