package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/runlog"
	runlogmongo "github.com/brainrun/brains/brain/runlog/mongo"
)

// TestStore_AppendAndLoad spins up a real MongoDB container via
// testcontainers and exercises the Store against it end to end: append a
// short log, then load it back in order.
func TestStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available, skipping mongo runlog integration test: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)
	require.NoError(t, client.Ping(ctx, nil))

	store, err := runlogmongo.NewStore(ctx, runlogmongo.Options{Client: client, Database: "brains_test"})
	require.NoError(t, err)

	now := time.Unix(0, 0).UTC()
	r1 := &runlog.Record{RunID: "run-1", Seq: 0, Kind: event.KindStart, Payload: []byte(`{}`), Timestamp: now}
	r2 := &runlog.Record{RunID: "run-1", Seq: 1, Kind: event.KindComplete, Payload: []byte(`{}`), Timestamp: now}
	require.NoError(t, store.Append(ctx, r1))
	require.NoError(t, store.Append(ctx, r2))

	records, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, event.KindStart, records[0].Kind)
	require.Equal(t, event.KindComplete, records[1].Kind)
}
