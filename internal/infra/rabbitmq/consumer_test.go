package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDeliveryAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 1},
		{"empty headers", amqp.Table{}, 1},
		{"int32 header", amqp.Table{attemptHeader: int32(3)}, 3},
		{"int64 header", amqp.Table{attemptHeader: int64(4)}, 4},
		{"int header", amqp.Table{attemptHeader: 2}, 2},
		{"non-numeric header", amqp.Table{attemptHeader: "5"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := amqp.Delivery{Headers: tt.headers}
			assert.Equal(t, tt.want, deliveryAttempt(d))
		})
	}
}

func TestBackoffEscalates(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, backoff(base, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(base, 2))
	assert.Equal(t, 400*time.Millisecond, backoff(base, 3))
	assert.Equal(t, 800*time.Millisecond, backoff(base, 4))
}

func TestBackoffCapped(t *testing.T) {
	base := time.Second
	assert.Equal(t, maxBackoff, backoff(base, 20))
}
