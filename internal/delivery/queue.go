// Package delivery implements the durable message-delivery pipeline: a redis
// stream of delivery units consumed by a worker pool that advances delivery
// records and notifies senders.
package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"parley/internal/cache"
	"parley/internal/middleware"
	"parley/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	// Consumer group shared by every node in the fleet.
	groupName = "delivery-workers"

	// Units not acked within this window are claimed by another worker.
	redeliveryIdle = 30 * time.Second

	// Attempts before a unit is dead-lettered.
	maxAttempts = 5
)

// Unit is one queued fan-out: a committed message and the recipients whose
// delivery records are still pending.
type Unit struct {
	MessageID  uint   `json:"messageId"`
	ChatID     uint   `json:"chatId"`
	SenderID   uint   `json:"senderId"`
	Recipients []uint `json:"recipients"`
}

// Entry is a reserved stream entry: the unit plus its stream ID and how many
// times it has been delivered to a worker.
type Entry struct {
	ID       string
	Unit     Unit
	Attempts int64
}

// Queue is the stream-backed delivery queue.
type Queue struct {
	rdb      *redis.Client
	consumer string
}

// NewQueue creates a queue handle; consumer names are per node so pending
// entries can be traced back.
func NewQueue(rdb *redis.Client, nodeID string) *Queue {
	return &Queue{rdb: rdb, consumer: "worker-" + nodeID}
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	if q.rdb == nil {
		return nil
	}
	err := q.rdb.XGroupCreateMkStream(ctx, cache.DeliveryStreamKey, groupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Enqueue appends a unit to the stream. Called after the send transaction
// commits; a failed append is logged, the next reconnect flush covers it.
func (q *Queue) Enqueue(ctx context.Context, unit Unit) error {
	if q.rdb == nil {
		return nil
	}
	data, err := json.Marshal(unit)
	if err != nil {
		return err
	}
	if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: cache.DeliveryStreamKey,
		Values: map[string]any{"unit": data},
	}).Err(); err != nil {
		return err
	}
	observability.DeliveryUnitsEnqueued.Inc()
	return nil
}

// Fetch reserves up to count new units for this consumer, blocking up to
// block when the stream is empty.
func (q *Queue) Fetch(ctx context.Context, count int64, block time.Duration) ([]Entry, error) {
	if q.rdb == nil {
		return nil, nil
	}
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: q.consumer,
		Streams:  []string{cache.DeliveryStreamKey, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if entry, ok := q.decode(msg); ok {
				entry.Attempts = 1
				entries = append(entries, entry)
			} else {
				// Unparseable entries are acked away, they can never succeed.
				_ = q.Ack(ctx, msg.ID)
			}
		}
	}
	return entries, nil
}

// backoffFor returns how long a unit must sit idle before redelivery
// attempt n runs: 30s, 60s, 120s, 240s, 480s.
func backoffFor(attempts int64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return redeliveryIdle << (attempts - 1)
}

// Claim takes over units reserved but not acked, honoring per-attempt
// exponential backoff. Entries past the attempt cap come back flagged so the
// worker dead-letters them.
func (q *Queue) Claim(ctx context.Context, count int64) ([]Entry, error) {
	if q.rdb == nil {
		return nil, nil
	}
	pending, err := q.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: cache.DeliveryStreamKey,
		Group:  groupName,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var due []string
	attempts := make(map[string]int64, len(pending))
	for _, p := range pending {
		// RetryCount counts deliveries so far; this claim is the next one.
		next := p.RetryCount + 1
		if p.Idle < backoffFor(p.RetryCount) {
			continue
		}
		due = append(due, p.ID)
		attempts[p.ID] = next
	}
	if len(due) == 0 {
		return nil, nil
	}

	msgs, err := q.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   cache.DeliveryStreamKey,
		Group:    groupName,
		Consumer: q.consumer,
		MinIdle:  redeliveryIdle,
		Messages: due,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	var entries []Entry
	for _, msg := range msgs {
		entry, ok := q.decode(msg)
		if !ok {
			_ = q.Ack(ctx, msg.ID)
			continue
		}
		entry.Attempts = attempts[msg.ID]
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ack confirms processing of stream entries.
func (q *Queue) Ack(ctx context.Context, ids ...string) error {
	if q.rdb == nil || len(ids) == 0 {
		return nil
	}
	return q.rdb.XAck(ctx, cache.DeliveryStreamKey, groupName, ids...).Err()
}

// DeadLetter moves an exhausted entry to the dead-letter stream and acks it.
func (q *Queue) DeadLetter(ctx context.Context, entry Entry) error {
	if q.rdb == nil {
		return nil
	}
	data, err := json.Marshal(entry.Unit)
	if err != nil {
		return err
	}
	if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: cache.DeliveryDeadLetters,
		Values: map[string]any{"unit": data, "attempts": entry.Attempts},
	}).Err(); err != nil {
		return err
	}
	observability.DeliveryDeadLetters.Inc()
	middleware.Logger.Error("Delivery unit dead-lettered",
		slog.Uint64("message_id", uint64(entry.Unit.MessageID)),
		slog.Int64("attempts", entry.Attempts))
	return q.Ack(ctx, entry.ID)
}

// Len returns the stream length, for readiness checks and tests.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	if q.rdb == nil {
		return 0, nil
	}
	return q.rdb.XLen(ctx, cache.DeliveryStreamKey).Result()
}

func (q *Queue) decode(msg redis.XMessage) (Entry, bool) {
	raw, ok := msg.Values["unit"].(string)
	if !ok {
		return Entry{}, false
	}
	var unit Unit
	if err := json.Unmarshal([]byte(raw), &unit); err != nil {
		middleware.Logger.Warn("Dropping malformed delivery unit",
			slog.String("stream_id", msg.ID), slog.String("error", err.Error()))
		return Entry{}, false
	}
	return Entry{ID: msg.ID, Unit: unit}, true
}
