package delivery

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"parley/internal/middleware"
	"parley/internal/observability"
	"parley/internal/realtime"
	"parley/internal/repository"
)

const (
	fetchBatch = 16
	fetchBlock = 2 * time.Second

	// How often a node scans for units other workers failed to ack.
	claimInterval = 10 * time.Second

	// Max pending messages replayed when a socket becomes ready.
	flushCap = 100
)

// Presence answers whether a recipient has a live socket anywhere in the
// fleet.
type Presence interface {
	IsOnline(ctx context.Context, userID uint) bool
}

// Emitter pushes delivery confirmations to the sender's sockets.
type Emitter interface {
	NotifyMessageDelivered(ctx context.Context, senderID, messageID, recipientID uint, at time.Time)
}

// Worker consumes delivery units: for each reachable recipient it advances
// the delivery record and confirms to the sender. Units are acked no matter
// what; unreachable recipients are covered by the flush on their next
// reconnect.
type Worker struct {
	queue    *Queue
	records  repository.DeliveryRepository
	presence Presence
	emitter  Emitter
	count    int

	wg sync.WaitGroup
}

// NewWorker creates a worker pool. count <= 0 means one worker per CPU.
func NewWorker(queue *Queue, records repository.DeliveryRepository, presence Presence, emitter Emitter, count int) *Worker {
	if count <= 0 {
		count = runtime.GOMAXPROCS(0)
	}
	return &Worker{
		queue:    queue,
		records:  records,
		presence: presence,
		emitter:  emitter,
		count:    count,
	}
}

// Start launches the worker loops and the redelivery claimer. They run until
// ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}

	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go w.fetchLoop(ctx)
	}
	w.wg.Add(1)
	go w.claimLoop(ctx)

	middleware.Logger.Info("Delivery workers started", slog.Int("workers", w.count))
	return nil
}

// Wait blocks until every loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) fetchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, err := w.queue.Fetch(ctx, fetchBatch, fetchBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			middleware.Logger.Warn("Delivery fetch failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		for _, entry := range entries {
			w.process(ctx, entry)
		}
	}
}

func (w *Worker) claimLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := w.queue.Claim(ctx, fetchBatch)
			if err != nil {
				middleware.Logger.Warn("Delivery claim failed", slog.String("error", err.Error()))
				continue
			}
			for _, entry := range entries {
				if entry.Attempts > maxAttempts {
					_ = w.queue.DeadLetter(ctx, entry)
					continue
				}
				observability.DeliveryRetries.Inc()
				w.process(ctx, entry)
			}
		}
	}
}

// process visits one unit. The ack happens regardless of per-recipient
// outcomes: a recipient without a socket stays pending and is flushed on
// their next reconnect.
func (w *Worker) process(ctx context.Context, entry Entry) {
	unit := entry.Unit
	failed := false

	for _, recipientID := range unit.Recipients {
		if !w.presence.IsOnline(ctx, recipientID) {
			continue
		}
		moved, err := w.records.MarkDelivered(ctx, unit.MessageID, recipientID)
		if err != nil {
			middleware.Logger.Warn("Failed to mark delivered",
				slog.Uint64("message_id", uint64(unit.MessageID)),
				slog.Uint64("user_id", uint64(recipientID)),
				slog.String("error", err.Error()))
			failed = true
			continue
		}
		if moved {
			w.emitter.NotifyMessageDelivered(ctx, unit.SenderID, unit.MessageID, recipientID, time.Now())
		}
	}

	if failed {
		// Leave the entry pending; the claim loop retries with backoff.
		observability.DeliveryUnitsProcessed.WithLabelValues("retry").Inc()
		return
	}
	if err := w.queue.Ack(ctx, entry.ID); err != nil {
		middleware.Logger.Warn("Delivery ack failed",
			slog.String("stream_id", entry.ID), slog.String("error", err.Error()))
		return
	}
	observability.DeliveryUnitsProcessed.WithLabelValues("ok").Inc()
}

// FlushPending replays the user's pending messages to a freshly ready
// socket, oldest first, marking each delivered in the same pass and
// confirming to the original senders.
func (w *Worker) FlushPending(ctx context.Context, c *realtime.Client) error {
	msgs, err := w.records.PendingForUser(ctx, c.UserID, flushCap)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		c.SendEvent(realtime.EventMessageNew, msg)
		moved, err := w.records.MarkDelivered(ctx, msg.ID, c.UserID)
		if err != nil {
			middleware.Logger.Warn("Flush failed to mark delivered",
				slog.Uint64("message_id", uint64(msg.ID)),
				slog.String("error", err.Error()))
			continue
		}
		if moved && msg.SenderID != nil {
			w.emitter.NotifyMessageDelivered(ctx, *msg.SenderID, msg.ID, c.UserID, time.Now())
		}
	}
	return nil
}

var (
	_ Presence = (*realtime.PresenceRegistry)(nil)
	_ Emitter  = (*realtime.Hub)(nil)
)
