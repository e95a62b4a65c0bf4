package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/bank-reconciler/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPublisher(t *testing.T, maxLen int64) *Publisher {
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "test:", &redis.Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	p, err := NewPublisher(adapter, Config{Stream: "payments", MaxLen: maxLen})
	require.NoError(t, err)
	return p
}

func TestNewPublisher_RequiresStream(t *testing.T) {
	_, err := NewPublisher(nil, Config{})
	assert.Error(t, err)
}

func TestPublisher_PaymentMatched(t *testing.T) {
	p := setupPublisher(t, 0)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.PaymentMatched(ctx, PaymentMatched{
		TransactionID: "FT001",
		OrderID:       "ord-1",
		UserID:        "user-1",
		Amount:        500000,
		PaymentStatus: "paid",
		Path:          "lookup",
		MatchedAt:     at,
	}))

	got, err := p.Read(ctx, "-", "+")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, TypePaymentMatched, got[0].Type)
	assert.Equal(t, "ord-1", got[0].Metadata["order_id"])
	assert.Equal(t, "500000", got[0].Metadata["amount"])

	var decoded PaymentMatched
	require.NoError(t, json.Unmarshal(got[0].Data, &decoded))
	assert.Equal(t, "FT001", decoded.TransactionID)
	assert.True(t, decoded.MatchedAt.Equal(at))
}

func TestPublisher_PublishKeepsOrder(t *testing.T) {
	p := setupPublisher(t, 0)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := p.Publish(ctx, "test", []byte(id), nil)
		require.NoError(t, err)
	}

	got, err := p.Read(ctx, "-", "+")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", string(got[0].Data))
	assert.Equal(t, "c", string(got[2].Data))
}
