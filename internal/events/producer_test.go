package events

import (
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

func TestEncodePaid(t *testing.T) {
	data := EncodePaid(payment.PaidEvent{
		OrderID:    "o1",
		OrderCode:  "K7Q2",
		UserID:     "u1",
		StallID:    "s1",
		TotalCents: 1002,
		PaidAt:     time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("SGT", 8*3600)),
	})

	got := map[string]string{}
	require.NoError(t, jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		got[key] = raw.String()
		return nil
	}))

	assert.Equal(t, `"order.paid"`, got["type"])
	assert.Equal(t, `"K7Q2"`, got["order_code"])
	assert.Equal(t, `1002`, got["total_cents"])
	assert.Equal(t, `"2024-05-01T04:30:00Z"`, got["paid_at"])
}

func TestHeaderCarrier(t *testing.T) {
	msg := &kafka.Message{Headers: []kafka.Header{{Key: "event-type", Value: []byte("order.paid")}}}
	c := headerCarrier{msg: msg}

	c.Set("traceparent", "00-abc-def-01")
	c.Set("traceparent", "00-abc-fed-01")

	assert.Equal(t, "00-abc-fed-01", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"event-type", "traceparent"}, c.Keys())
}
