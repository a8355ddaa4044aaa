package event

import (
	"slices"
	"sync"

	"github.com/dhis2-sre/im-console/pkg/model"
)

type Type string

const (
	// TypeConnectionActivated carries the newly activated connection.
	TypeConnectionActivated Type = "connection.activated"
	// TypeConnectionCleared is sent when the active connection was deleted. Connection is nil.
	TypeConnectionCleared Type = "connection.cleared"
	// TypeSessionExpired asks presentation to redirect to the login surface.
	TypeSessionExpired Type = "session.expired"
)

type Event struct {
	Type       Type
	Connection *model.Connection
	Message    string
}

func NewEventBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]*subscriber),
	}
}

// Broker fans events out to its subscribers. Every subscriber has its own queue which is drained in
// order by a goroutine, so publishing never blocks and no event is lost. An event replaces the last
// queued event of a subscriber if both are of the same type.
type Broker struct {
	subscribers map[string]*subscriber
	lock        sync.Mutex
}

type subscriber struct {
	events chan Event
	wake   chan struct{}
	quit   chan struct{}
	// guarded by Broker.lock
	queue []Event
}

// Subscribe registers a subscriber under id and returns the channel events are delivered on.
// Subscribing with an id which is already subscribed returns the existing channel.
func (e *Broker) Subscribe(id string) <-chan Event {
	e.lock.Lock()
	defer e.lock.Unlock()

	if s, ok := e.subscribers[id]; ok {
		return s.events
	}
	s := &subscriber{
		events: make(chan Event),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	e.subscribers[id] = s
	go e.deliver(s)
	return s.events
}

// Unsubscribe removes the subscriber. Its channel is closed once pending deliveries are abandoned.
func (e *Broker) Unsubscribe(id string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	s, ok := e.subscribers[id]
	if !ok {
		return
	}
	close(s.quit)
	delete(e.subscribers, id)
}

func (e *Broker) Subscribers() []string {
	e.lock.Lock()
	defer e.lock.Unlock()

	ids := make([]string, 0, len(e.subscribers))
	for id := range e.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Publish queues event for every subscriber.
func (e *Broker) Publish(event Event) {
	e.lock.Lock()
	defer e.lock.Unlock()

	for _, s := range e.subscribers {
		if n := len(s.queue); n > 0 && s.queue[n-1].Type == event.Type {
			s.queue[n-1] = event
		} else {
			s.queue = append(s.queue, event)
		}
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// deliver sends the queued events of s in order until s unsubscribes.
func (e *Broker) deliver(s *subscriber) {
	defer close(s.events)

	for {
		event, ok := e.next(s)
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.quit:
				return
			}
		}

		select {
		case s.events <- event:
		case <-s.quit:
			return
		}
	}
}

// next pops the oldest queued event of s. An event in flight is no longer part of the queue and is
// never replaced.
func (e *Broker) next(s *subscriber) (Event, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if len(s.queue) == 0 {
		return Event{}, false
	}
	event := s.queue[0]
	s.queue = s.queue[1:]
	return event, true
}
