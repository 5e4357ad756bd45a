package adapter

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    ulid "github.com/oklog/ulid/v2"
    "github.com/redis/go-redis/v9"

    "github.com/bcgov/showcase-traction-adapter/internal/logging"
    "github.com/bcgov/showcase-traction-adapter/internal/metrics"
    "github.com/bcgov/showcase-traction-adapter/internal/protocol"
    "github.com/bcgov/showcase-traction-adapter/internal/publisher"
    "github.com/bcgov/showcase-traction-adapter/internal/tokencrypt"
    "github.com/bcgov/showcase-traction-adapter/internal/traction"
)

// consume reads command batches and processes each message independently; a
// single message's failure never stops the loop.
func (a *Adapter) consume(ctx context.Context) {
    ev := logging.NewEventLogger()
    consumer := a.cfg.Broker.ConsumerName
    if consumer == "" {
        consumer = "adapter-" + ulid.Make().String()
    }
    block := time.Duration(a.cfg.Broker.BlockMs) * time.Millisecond
    sem := make(chan struct{}, a.cfg.Broker.MaxInFlight)
    for ctx.Err() == nil {
        msgs, err := a.broker.ReadBatch(ctx, consumer, a.cfg.Broker.ReadCount, block)
        if err != nil {
            if ctx.Err() != nil {
                return
            }
            ev.Infra("read", "broker", "failed", err.Error())
            time.Sleep(500 * time.Millisecond)
            continue
        }
        for _, m := range msgs {
            metrics.CommandsReadTotal.Inc()
            sem <- struct{}{}
            go func(m redis.XMessage) {
                defer func() { <-sem }()
                a.process(ctx, m)
            }(m)
        }
    }
}

// process runs one delivery through the pipeline: headers validated, session
// resolved, payload validated, dispatched, then accepted or rejected.
func (a *Adapter) process(ctx context.Context, m redis.XMessage) {
    ev := logging.NewEventLogger()
    t0 := time.Now()
    defer func() { metrics.CommandDuration.Observe(time.Since(t0).Seconds()) }()

    env, err := protocol.DecodeHeaders(m.ID, m.Values, protocol.Defaults{
        TenantID:        a.cfg.Broker.DefaultTenantID,
        WalletID:        a.cfg.Broker.DefaultWalletID,
        LedgerAPIBase:   a.cfg.Traction.APIBase,
        RegistryAPIBase: a.cfg.Registry.APIBase,
    })
    if err != nil {
        a.reject(ctx, m.ID, env, err)
        return
    }
    ev.Command("receive", m.ID, string(env.Action), env.TenantID, "")

    sess, err := a.sessions.GetOrCreate(ctx, env.TenantID, env.RegistryAPIBase, env.LedgerAPIBase, env.WalletID, env.EncryptedToken, env.TokenNonce)
    if err != nil {
        a.reject(ctx, m.ID, env, err)
        return
    }
    p := publisher.ForSession(sess)

    switch env.Action {
    case protocol.ActionPublishIssuerAssets:
        iss, err := protocol.DecodeIssuerPayload(env.Payload)
        if err != nil {
            a.reject(ctx, m.ID, env, err)
            return
        }
        txIDs, err := p.PublishIssuerAssets(ctx, iss)
        if err != nil {
            a.reject(ctx, m.ID, env, err)
            return
        }
        states, err := p.WaitForTransactions(ctx, txIDs,
            time.Duration(a.cfg.Traction.PollIntervalMs)*time.Millisecond,
            time.Duration(a.cfg.Traction.PollTimeoutMs)*time.Millisecond)
        if err != nil {
            a.reject(ctx, m.ID, env, err)
            return
        }
        for id, st := range states {
            if st != traction.TxCompleted && st != traction.TxNotFound {
                a.reject(ctx, m.ID, env, errors.New("transaction "+id+" ended "+string(st)))
                return
            }
        }
    case protocol.ActionImportSchema:
        s, err := protocol.DecodeSchemaPayload(env.Payload)
        if err == nil {
            err = p.ImportCredentialSchema(ctx, s)
        }
        if err != nil {
            a.reject(ctx, m.ID, env, err)
            return
        }
    case protocol.ActionImportCredDef:
        d, err := protocol.DecodeCredDefPayload(env.Payload)
        if err == nil {
            err = p.ImportCredentialDefinition(ctx, d)
        }
        if err != nil {
            a.reject(ctx, m.ID, env, err)
            return
        }
    }

    a.accept(ctx, m.ID, env)
}

func (a *Adapter) accept(ctx context.Context, msgID string, env *protocol.CommandEnvelope) {
    ev := logging.NewEventLogger()
    if err := a.broker.Ack(ctx, msgID); err != nil {
        ev.Infra("ack", "broker", "failed", err.Error())
    }
    metrics.CommandsAcceptedTotal.Inc()
    ev.Command("accept", msgID, string(env.Action), env.TenantID, "")
    a.record(ctx, msgID, env, "accepted", "")
}

// reject writes the structured rejection, acks the original so redelivery is
// governed by the broker's dead-letter policy, and journals the outcome. The
// description never contains token material.
func (a *Adapter) reject(ctx context.Context, msgID string, env *protocol.CommandEnvelope, cause error) {
    ev := logging.NewEventLogger()
    condition := classify(cause)
    r := protocol.NewRejection(env, condition, cause.Error())
    r.MessageID = msgID
    b, _ := json.Marshal(r)
    if err := a.broker.Reject(ctx, b); err != nil {
        ev.Infra("reject", "broker", "failed", err.Error())
    }
    if err := a.broker.Ack(ctx, msgID); err != nil {
        ev.Infra("ack", "broker", "failed", err.Error())
    }
    metrics.CommandsRejectedTotal.Inc()
    action, tenant := "", ""
    if env != nil {
        action, tenant = string(env.Action), env.TenantID
    }
    ev.Command("reject", msgID, action, tenant, condition+": "+cause.Error())
    a.record(ctx, msgID, env, "rejected", cause.Error())
}

func (a *Adapter) record(ctx context.Context, msgID string, env *protocol.CommandEnvelope, outcome, reason string) {
    if a.journal == nil {
        return
    }
    action, tenant := "", ""
    if env != nil {
        action, tenant = string(env.Action), env.TenantID
    }
    if err := a.journal.Record(ctx, msgID, action, tenant, outcome, reason); err != nil {
        logging.NewEventLogger().Infra("write", "journal", "failed", err.Error())
    }
}

// classify maps an error to the operator-facing rejection condition, keeping
// protocol, domain, and dependency failures distinguishable.
func classify(err error) string {
    var pe *protocol.Err
    if errors.As(err, &pe) {
        return pe.Condition
    }
    var de *tokencrypt.DecryptionError
    if errors.As(err, &de) {
        return "decryption-failed"
    }
    var mi *publisher.MissingIdentifierError
    var is *publisher.InvalidSchemaResponseError
    var ia *publisher.InvalidAttributeNameError
    if errors.As(err, &mi) || errors.As(err, &is) || errors.As(err, &ia) ||
        errors.Is(err, publisher.ErrNoPublicDID) || errors.Is(err, publisher.ErrSchemaUnresolved) {
        return "domain-error"
    }
    var te *publisher.TimeoutError
    if errors.As(err, &te) {
        return "transaction-timeout"
    }
    return "dependency-error"
}
