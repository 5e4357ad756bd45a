package metrics

import (
    "net/http"

    prom "github.com/prometheus/client_golang/prometheus"
    promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    CommandsReadTotal     = prom.NewCounter(prom.CounterOpts{Name: "adapter_commands_read_total", Help: "Command messages read from the broker"})
    CommandsAcceptedTotal = prom.NewCounter(prom.CounterOpts{Name: "adapter_commands_accepted_total", Help: "Command deliveries accepted"})
    CommandsRejectedTotal = prom.NewCounter(prom.CounterOpts{Name: "adapter_commands_rejected_total", Help: "Command deliveries rejected"})
    SchemasCreatedTotal   = prom.NewCounter(prom.CounterOpts{Name: "adapter_schemas_created_total", Help: "Credential schemas registered on the ledger"})
    CredDefsCreatedTotal  = prom.NewCounter(prom.CounterOpts{Name: "adapter_creddefs_created_total", Help: "Credential definitions registered on the ledger"})
    SessionsCreatedTotal  = prom.NewCounter(prom.CounterOpts{Name: "adapter_sessions_created_total", Help: "Publishing sessions created"})
    SessionsEvictedTotal  = prom.NewCounter(prom.CounterOpts{Name: "adapter_sessions_evicted_total", Help: "Publishing sessions evicted from the cache"})
    SessionsGauge         = prom.NewGauge(prom.GaugeOpts{Name: "adapter_sessions", Help: "Live sessions in the cache"})
    TxPollTicksTotal      = prom.NewCounter(prom.CounterOpts{Name: "adapter_tx_poll_ticks_total", Help: "Transaction status poll ticks"})
    CommandDuration       = prom.NewHistogram(prom.HistogramOpts{Name: "adapter_command_duration_seconds", Help: "End-to-end handling time per command", Buckets: prom.DefBuckets})
)

func init() {
    prom.MustRegister(CommandsReadTotal, CommandsAcceptedTotal, CommandsRejectedTotal,
        SchemasCreatedTotal, CredDefsCreatedTotal,
        SessionsCreatedTotal, SessionsEvictedTotal, SessionsGauge,
        TxPollTicksTotal, CommandDuration)
}

func Handler() http.Handler { return promhttp.Handler() }
