package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const publishTimeout = 10 * time.Second

// Dispatcher fans notifications out to a Publisher through a bounded queue
// and worker pool. Enqueueing never blocks: when the queue is full the
// notification is dropped and logged, which keeps a slow or dead broker
// from backing up into webhook handling.
type Dispatcher struct {
	pub     Publisher
	queue   chan Notification
	wg      sync.WaitGroup
	closing chan struct{}
	once    sync.Once
}

// NewDispatcher starts workers draining into pub.
func NewDispatcher(pub Publisher, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		pub:     pub,
		queue:   make(chan Notification, queueSize),
		closing: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify implements Notifier.
func (d *Dispatcher) Notify(n Notification) {
	select {
	case <-d.closing:
		slog.Warn("notify.dropped_closing", "kind", n.Kind, "channel", n.ChannelID)
	case d.queue <- n:
	default:
		slog.Warn("notify.dropped_queue_full", "kind", n.Kind, "channel", n.ChannelID)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.publish(n)
		case <-d.closing:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case n := <-d.queue:
					d.publish(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(n Notification) {
	env := Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Source:     "unibox",
			OccurredAt: time.Now().UTC(),
		},
		Data: n,
	}
	key := n.RoutingKey
	if key == "" {
		key = "admin." + string(n.Kind)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.pub.Publish(ctx, key, env); err != nil {
		slog.Warn("notify.publish_failed", "kind", n.Kind, "channel", n.ChannelID, "error", err)
	}
}

// Close drains the queue, stops workers and closes the publisher. The queue
// channel is never closed so a straggling Notify can never panic; at worst
// its notification is dropped, which fire-and-forget permits.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		close(d.closing)
	})
	d.wg.Wait()
	return d.pub.Close()
}
