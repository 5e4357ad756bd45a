package data

import (
    "context"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
)

// Broker wraps the command stream. Accepting a delivery is an XACK; rejecting
// writes a structured record to the reject stream, after which the caller
// acks the original so the group's pending list stays clean and the broker's
// dead-letter policy governs retries.
type Broker struct {
    cfg    adaptercfg.BrokerConfig
    c      *redis.Client
    stream string
    reject string
}

func NewBroker(cfg adaptercfg.BrokerConfig) (*Broker, error) {
    client := redis.NewClient(&redis.Options{
        Addr:         cfg.Addr,
        Username:     cfg.Username,
        Password:     cfg.Password,
        DB:           cfg.DB,
        ReadTimeout:  3 * time.Second,
        WriteTimeout: 3 * time.Second,
        DialTimeout:  3 * time.Second,
    })
    return &Broker{
        cfg:    cfg,
        c:      client,
        stream: prefixed(cfg.KeyPrefix, cfg.Topic),
        reject: prefixed(cfg.KeyPrefix, cfg.RejectStream),
    }, nil
}

// EnsureGroup creates the consumer group, tolerating a group that already
// exists.
func (b *Broker) EnsureGroup(ctx context.Context) error {
    err := b.c.XGroupCreateMkStream(ctx, b.stream, b.cfg.ConsumerGroup, "0").Err()
    if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
        return nil
    }
    return err
}

// ReadBatch blocks up to block for new deliveries addressed to this consumer.
func (b *Broker) ReadBatch(ctx context.Context, consumer string, count int, block time.Duration) ([]redis.XMessage, error) {
    streams, err := b.c.XReadGroup(ctx, &redis.XReadGroupArgs{
        Group:    b.cfg.ConsumerGroup,
        Consumer: consumer,
        Streams:  []string{b.stream, ">"},
        Count:    int64(count),
        Block:    block,
    }).Result()
    if err == redis.Nil {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    var msgs []redis.XMessage
    for _, s := range streams {
        msgs = append(msgs, s.Messages...)
    }
    return msgs, nil
}

func (b *Broker) Ack(ctx context.Context, ids ...string) error {
    if len(ids) == 0 {
        return nil
    }
    cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return b.c.XAck(cctx, b.stream, b.cfg.ConsumerGroup, ids...).Err()
}

// Reject writes the rejection record to the reject stream.
func (b *Broker) Reject(ctx context.Context, record []byte) error {
    cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    return b.c.XAdd(cctx, &redis.XAddArgs{
        Stream: b.reject,
        Values: map[string]any{"rejection": record},
    }).Err()
}

func (b *Broker) Close() error {
    if b.c != nil {
        return b.c.Close()
    }
    return nil
}

func prefixed(prefix, key string) string {
    if prefix == "" {
        return key
    }
    return prefix + key
}
