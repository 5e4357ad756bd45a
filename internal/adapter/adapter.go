package adapter

import (
    "context"
    "fmt"
    "net/http"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
    "github.com/bcgov/showcase-traction-adapter/internal/data"
    "github.com/bcgov/showcase-traction-adapter/internal/logging"
    "github.com/bcgov/showcase-traction-adapter/internal/metrics"
    "github.com/bcgov/showcase-traction-adapter/internal/session"
    "github.com/bcgov/showcase-traction-adapter/internal/tokencrypt"
)

// commandBroker is the slice of the broker the processor drives. *data.Broker
// satisfies it; tests substitute a fake.
type commandBroker interface {
    EnsureGroup(ctx context.Context) error
    ReadBatch(ctx context.Context, consumer string, count int, block time.Duration) ([]redis.XMessage, error)
    Ack(ctx context.Context, ids ...string) error
    Reject(ctx context.Context, record []byte) error
    Close() error
}

// Adapter drives the broker-consumption loop and maps inbound commands onto
// the publishing orchestrator.
type Adapter struct {
    cfg      *adaptercfg.Config
    sessions *session.Cache
    broker   commandBroker
    journal  *data.Journal
}

func New(configPath string) (*Adapter, error) {
    cfg, err := adaptercfg.Load(configPath)
    if err != nil {
        return nil, fmt.Errorf("load config: %w", err)
    }
    codec, err := tokencrypt.New(cfg.Crypto)
    if err != nil {
        return nil, fmt.Errorf("init token codec: %w", err)
    }
    return &Adapter{
        cfg:      cfg,
        sessions: session.NewCache(cfg.Sessions, cfg.Traction, cfg.Registry, codec),
    }, nil
}

func (a *Adapter) Start(ctx context.Context) error {
    stopLog := logging.Init(a.cfg.Logging)
    defer stopLog()
    logging.Info("adapter_start", logging.F("listen", a.cfg.Server.Listen), logging.F("topic", a.cfg.Broker.Topic))
    ev := logging.NewEventLogger()

    broker, err := data.NewBroker(a.cfg.Broker)
    if err != nil {
        return err
    }
    a.broker = broker
    if err := broker.EnsureGroup(ctx); err != nil {
        ev.Infra("connect", "broker", "failed", err.Error())
        return err
    }
    ev.Infra("connect", "broker", "success", "")

    journal, err := data.NewJournal(a.cfg.Journal)
    if err != nil {
        // operability aid only; run without it rather than refuse to start
        ev.Infra("connect", "journal", "failed", err.Error())
        journal = nil
    }
    a.journal = journal

    go a.consume(ctx)

    mux := http.NewServeMux()
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
    mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ready")) })
    server := &http.Server{Addr: a.cfg.Server.Listen, Handler: mux}

    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = server.Shutdown(shutdownCtx)
        if a.broker != nil { _ = a.broker.Close() }
        if a.journal != nil { a.journal.Close() }
    }()

    if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        return err
    }
    return nil
}
