//go:build integration

package itutil

import (
    "context"
    "fmt"
    "net"
    "os"
    "path/filepath"
    "testing"

    psqlmod "github.com/testcontainers/testcontainers-go/modules/postgres"
    redismod "github.com/testcontainers/testcontainers-go/modules/redis"
    yaml "gopkg.in/yaml.v3"

    "github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
)

// StartPostgres launches a Postgres container and returns the container handle and DSN.
func StartPostgres(t *testing.T) (*psqlmod.PostgresContainer, string) {
    t.Helper()
    ctx := context.Background()
    pg, err := psqlmod.RunContainer(ctx, psqlmod.WithDatabase("testdb"), psqlmod.WithUsername("test"), psqlmod.WithPassword("test"))
    if err != nil { t.Fatalf("pg up: %v", err) }
    dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
    if err != nil { t.Fatalf("pg dsn: %v", err) }
    return pg, dsn
}

// StartRedis launches a Redis container and returns the container handle and address.
func StartRedis(t *testing.T) (*redismod.RedisContainer, string) {
    t.Helper()
    ctx := context.Background()
    r, err := redismod.RunContainer(ctx)
    if err != nil { t.Fatalf("redis up: %v", err) }
    host, err := r.Host(ctx)
    if err != nil { t.Fatalf("redis host: %v", err) }
    port, err := r.MappedPort(ctx, "6379")
    if err != nil { t.Fatalf("redis port: %v", err) }
    return r, fmt.Sprintf("%s:%s", host, port.Port())
}

// FreePort finds a free TCP port on localhost.
func FreePort(t *testing.T) int {
    t.Helper()
    l, err := net.Listen("tcp", ":0")
    if err != nil { t.Fatalf("listen :0: %v", err) }
    defer l.Close()
    return l.Addr().(*net.TCPAddr).Port
}

// WriteAdapterConfig writes an adapter config to a temp file and returns its path.
func WriteAdapterConfig(t *testing.T, cfg adaptercfg.Config) string {
    t.Helper()
    b, err := yaml.Marshal(cfg)
    if err != nil { t.Fatalf("marshal cfg: %v", err) }
    dir := t.TempDir()
    p := filepath.Join(dir, "adapter.yaml")
    if err := os.WriteFile(p, b, 0o644); err != nil { t.Fatalf("write cfg: %v", err) }
    return p
}
