package redis_test

import (
	"context"
	"fmt"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brainrun/brains/brain/signal"
	redisstore "github.com/brainrun/brains/brain/signalstore/redis"
)

// TestProvider_PriorityOrdering spins up a real Redis container via
// testcontainers and exercises priority ordering (KILL before PAUSE)
// against the Redis-backed Provider.
func TestProvider_PriorityOrdering(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available, skipping redis signal store integration test: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer rdb.Close()

	p := redisstore.New(rdb, "run-1")
	p.Queue(signal.Signal{Kind: signal.KindPause})
	p.Queue(signal.Signal{Kind: signal.KindKill})

	s, ok := p.Take(signal.Of(signal.KindKill, signal.KindPause), true)
	require.True(t, ok)
	require.Equal(t, signal.KindKill, s.Kind)

	s, ok = p.Take(signal.Of(signal.KindKill, signal.KindPause), true)
	require.True(t, ok)
	require.Equal(t, signal.KindPause, s.Kind)
}
