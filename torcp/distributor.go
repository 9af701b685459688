//----------------------------------------------------------------------
// This file is part of torcp.
// Copyright (C) 2011-2026 Bernd Fix  >Y<
//
// torcp is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// torcp is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package torcp

import "sync"

// subscriptionBuffer is the per-subscription channel depth. A
// subscriber may fall this many events behind before it is cut loose.
const subscriptionBuffer = 16

// EventSubscription is one consumer's view of a distributor: a
// buffered channel of events, optionally restricted to a set of kinds.
type EventSubscription struct {
	ch    chan AsyncEvent
	kinds map[AsyncEventKind]bool // nil: every kind
	dist  *EventDistributor
}

// Events returns the channel to receive on. It is closed when the
// subscription is cancelled, the subscriber falls too far behind, or
// the distributor retires.
func (s *EventSubscription) Events() <-chan AsyncEvent {
	return s.ch
}

// Cancel unsubscribes and closes the event channel.
func (s *EventSubscription) Cancel() {
	s.dist.drop(s)
}

// EventDistributor fans one connection's async events out to any
// number of subscribers. The connection side stays single-goroutine:
// Handler returns an EventHandler that hands each event to the
// distributor's dispatch loop and returns, so the command currently in
// flight on the connection is never held up by a consumer.
//
// A subscriber that stops draining its channel is dropped once its
// buffer fills, instead of being waited on: the handler runs between a
// command's request and its final reply, and nothing downstream may
// stall that path.
type EventDistributor struct {
	evCh   chan AsyncEvent
	cmdCh  chan subOp
	done   chan struct{}
	subs   map[*EventSubscription]bool
	retire sync.Once
}

// subOp is one add/drop request for the dispatch loop.
type subOp struct {
	add   *EventSubscription
	drop  *EventSubscription
	reply chan struct{}
}

// NewEventDistributor creates a distributor and starts its dispatch
// loop. Retire it when the connection feeding it is closed.
func NewEventDistributor() *EventDistributor {
	d := &EventDistributor{
		evCh:  make(chan AsyncEvent),
		cmdCh: make(chan subOp),
		done:  make(chan struct{}),
		subs:  make(map[*EventSubscription]bool),
	}
	go d.run()
	return d
}

// Handler returns the EventHandler to install on an AuthenticatedConn
// via SetEventHandler. After Retire it fails with ErrDistributorRetired,
// aborting the in-flight command, so a retired distributor is not
// silently swallowing events.
func (d *EventDistributor) Handler() EventHandler {
	return func(ev AsyncEvent) error {
		// checked up front: the dispatch loop may still be draining
		// its select for one more round after Retire
		select {
		case <-d.done:
			return ErrDistributorRetired
		default:
		}
		select {
		case d.evCh <- ev:
			return nil
		case <-d.done:
			return ErrDistributorRetired
		}
	}
}

// Subscribe registers a new subscription. With no kinds given, every
// event is delivered; otherwise only events of the listed kinds.
func (d *EventDistributor) Subscribe(kinds ...AsyncEventKind) (*EventSubscription, error) {
	sub := &EventSubscription{
		ch:   make(chan AsyncEvent, subscriptionBuffer),
		dist: d,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[AsyncEventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	select {
	case <-d.done:
		return nil, ErrDistributorRetired
	default:
	}
	op := subOp{add: sub, reply: make(chan struct{})}
	select {
	case d.cmdCh <- op:
		<-op.reply
		return sub, nil
	case <-d.done:
		return nil, ErrDistributorRetired
	}
}

// Retire stops the dispatch loop and closes every subscription
// channel. Safe to call more than once.
func (d *EventDistributor) Retire() {
	d.retire.Do(func() { close(d.done) })
}

func (d *EventDistributor) drop(sub *EventSubscription) {
	op := subOp{drop: sub, reply: make(chan struct{})}
	select {
	case d.cmdCh <- op:
		<-op.reply
	case <-d.done:
	}
}

// run is the dispatch loop; it owns d.subs exclusively.
func (d *EventDistributor) run() {
	defer func() {
		for sub := range d.subs {
			close(sub.ch)
		}
	}()
	for {
		select {
		case <-d.done:
			return

		case op := <-d.cmdCh:
			if op.add != nil {
				d.subs[op.add] = true
			}
			if op.drop != nil && d.subs[op.drop] {
				delete(d.subs, op.drop)
				close(op.drop.ch)
			}
			op.reply <- struct{}{}

		case ev := <-d.evCh:
			for sub := range d.subs {
				if sub.kinds != nil && !sub.kinds[ev.Kind] {
					continue
				}
				select {
				case sub.ch <- ev:
				default:
					// buffer full: the subscriber stopped draining
					delete(d.subs, sub)
					close(sub.ch)
				}
			}
		}
	}
}
