//go:build integration

package kvpipe_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/commands"
	"github.com/kvpipe/kvpipe/internal/conn"
	"github.com/kvpipe/kvpipe/resp"
)

// startRedis brings up a real redis-compatible listener the same way
// the teacher's client_integration_test.go brings up memcached:
// GenericContainer with a single exposed port and ForListeningPort.
func startRedis(t *testing.T) (context.Context, testcontainers.Container, string, int) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort(nat.Port("6379/tcp")),
	}
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	port, err := redisContainer.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return ctx, redisContainer, host, port.Int()
}

func TestSessionGetsAndSetsAgainstRealServer(t *testing.T) {
	ctx, redisContainer, host, port := startRedis(t)
	defer redisContainer.Terminate(ctx)

	pool := conn.NewTCPPool(2*time.Second, 4)
	spec := conn.NodeSpec{Address: host, Port: port}

	// get - not found
	result, err := kvpipe.WithConnection(pool, spec, nil, nil, func(s *kvpipe.Session) error {
		return commands.Get(s, "not-exists")
	})
	require.NoError(t, err)
	reply, ok := result.(*resp.Reply)
	require.True(t, ok)
	assert.True(t, reply.BulkNull, "expected a nil bulk reply for a missing key")

	// set - success
	_, err = kvpipe.WithConnection(pool, spec, nil, nil, func(s *kvpipe.Session) error {
		return commands.Set(s, "1", []byte("1"))
	})
	require.NoError(t, err)

	// get - previously set value
	result, err = kvpipe.WithConnection(pool, spec, nil, nil, func(s *kvpipe.Session) error {
		return commands.Get(s, "1")
	})
	require.NoError(t, err)
	reply, ok = result.(*resp.Reply)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), reply.Bulk)

	// set many, then a pipelined get of all of them
	var keys []string
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		keys = append(keys, key)
		_, err = kvpipe.WithConnection(pool, spec, nil, nil, func(s *kvpipe.Session) error {
			return commands.Set(s, key, []byte(fmt.Sprintf("value-%d", i)))
		})
		require.NoError(t, err)
	}

	many, err := kvpipe.WithConnection(pool, spec, nil, nil, func(s *kvpipe.Session) error {
		for _, k := range keys {
			if err := commands.Get(s, k); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	vec := kvpipe.AsVector(many)
	assert.Len(t, vec, 50)
	for i, r := range vec {
		assert.Equal(t, []byte(fmt.Sprintf("value-%d", i)), r.Bulk)
	}
}
