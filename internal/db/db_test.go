package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, EnsureSchema(ctx, conn))

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_campaigns`).Scan(&n))
	require.Zero(t, n)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "nope", "")
	require.Error(t, err)
}
