package notification

import (
    "context"
    "encoding/json"
    "errors"
    "log/slog"
    "time"

    "github.com/redis/go-redis/v9"
)

const (
    KindFundsTransfer = "funds_transfer"
    KindDeposit       = "deposit"
    KindWithdrawal    = "withdrawal"

    // DefaultChannel is the Redis channel wallet events are published on.
    DefaultChannel = "walletledger:events"
)

// Message describes a notification payload. Destination is the owning user id.
type Message struct {
    Kind        string    `json:"kind"`
    Destination string    `json:"destination"`
    Body        string    `json:"body"`
    OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
    Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
    logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
    return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
    if n == nil || n.logger == nil {
        return nil
    }
    n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
    return nil
}

// RedisNotifier publishes messages as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
    client  *redis.Client
    channel string
}

// NewRedisNotifier builds a publisher on channel, or DefaultChannel when empty.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
    if channel == "" {
        channel = DefaultChannel
    }
    return &RedisNotifier{client: client, channel: channel}
}

// Send publishes the message. Zero subscribers is not an error.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
    if message.OccurredAt.IsZero() {
        message.OccurredAt = time.Now().UTC()
    }
    payload, err := json.Marshal(message)
    if err != nil {
        return err
    }
    return n.client.Publish(ctx, n.channel, payload).Err()
}

// Fanout sends to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, message Message) error {
    var errs []error
    for _, n := range f {
        if err := n.Send(ctx, message); err != nil {
            errs = append(errs, err)
        }
    }
    return errors.Join(errs...)
}
