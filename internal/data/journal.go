package data

import (
    "context"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
    ulid "github.com/oklog/ulid/v2"

    "github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
)

// Journal is the config-gated delivery-outcome log: one row per processed
// command. Best-effort only; a journal failure never changes a delivery
// outcome.
type Journal struct {
    cfg  adaptercfg.JournalConfig
    pool *pgxpool.Pool
}

func NewJournal(cfg adaptercfg.JournalConfig) (*Journal, error) {
    if !cfg.Enabled {
        return &Journal{cfg: cfg}, nil
    }
    pconf, err := pgxpool.ParseConfig(cfg.DSN)
    if err != nil {
        return nil, err
    }
    if cfg.MaxConns > 0 {
        pconf.MaxConns = int32(cfg.MaxConns)
    }
    pool, err := pgxpool.NewWithConfig(context.Background(), pconf)
    if err != nil {
        return nil, err
    }
    j := &Journal{cfg: cfg, pool: pool}
    if err := j.ensureTable(context.Background()); err != nil {
        pool.Close()
        return nil, err
    }
    return j, nil
}

func (j *Journal) ensureTable(ctx context.Context) error {
    cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
    defer cancel()
    _, err := j.pool.Exec(cctx, `
        CREATE TABLE IF NOT EXISTS command_journal (
            id         TEXT PRIMARY KEY,
            message_id TEXT NOT NULL,
            action     TEXT NOT NULL,
            tenant_id  TEXT NOT NULL,
            outcome    TEXT NOT NULL,
            reason     TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`)
    return err
}

// Record journals one delivery outcome (accepted or rejected, with reason).
func (j *Journal) Record(ctx context.Context, messageID, action, tenantID, outcome, reason string) error {
    if j.pool == nil {
        return nil
    }
    cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := j.pool.Exec(cctx,
        `INSERT INTO command_journal (id, message_id, action, tenant_id, outcome, reason)
         VALUES ($1,$2,$3,$4,$5,$6)`,
        ulid.Make().String(), messageID, action, tenantID, outcome, reason,
    )
    return err
}

func (j *Journal) Close() {
    if j.pool != nil {
        j.pool.Close()
    }
}
