package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher_Publish(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	pub := NewRedisPublisher(mr.Addr(), "", 0)
	defer pub.Close()
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	pubsub := sub.Subscribe(ctx, Channel)
	defer pubsub.Close()
	_, err = pubsub.Receive(ctx)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.LicenseEvent{
		Type:          domain.EventLicenseBound,
		ApplicationID: "app-1",
		LicenseID:     "lic-1",
		KeyHint:       "ECL-ABCD****",
		HardwareID:    "hw-1",
		At:            at,
	}
	require.NoError(t, pub.Publish(ctx, event))

	select {
	case msg := <-pubsub.Channel():
		var got domain.LicenseEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, event, got)
		assert.NotContains(t, msg.Payload, "ECL-ABCDEFGH")
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisPublisher_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	pub := NewRedisPublisher(mr.Addr(), "", 0)
	defer pub.Close()
	assert.NoError(t, pub.Ping(context.Background()))

	mr.Close()
	assert.Error(t, pub.Ping(context.Background()))
	assert.Error(t, pub.Publish(context.Background(), domain.LicenseEvent{Type: domain.EventLicenseBanned}))
}
