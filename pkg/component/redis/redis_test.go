package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisopts "github.com/kart-io/vectorag/pkg/options/redis"
)

func TestNewWithNilOptions(t *testing.T) {
	client, err := New(nil)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "cannot be nil")
}

func TestNewWithUnreachableServer(t *testing.T) {
	opts := redisopts.NewOptions()
	opts.Host = "127.0.0.1"
	opts.Port = 1
	opts.DialTimeout = 100 * time.Millisecond
	opts.MaxRetries = 0

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewWithContext(ctx, opts)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to ping redis")
}
