package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "pending", input: "pending", want: StatusPending},
		{name: "processing", input: "processing", want: StatusProcessing},
		{name: "shipped", input: "shipped", want: StatusShipped},
		{name: "delivered", input: "delivered", want: StatusDelivered},
		{name: "cancelled", input: "cancelled", want: StatusCancelled},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown", input: "refunded", wantErr: true},
		{name: "wrong case", input: "Pending", wantErr: true},
		{name: "padded", input: " pending", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumberFromTime(t *testing.T) {
	at := time.UnixMilli(1_723_456_789_123)
	assert.Equal(t, "ORD-789123", NumberFromTime(at))

	// Trailing digits below 100000 are zero-padded.
	assert.Equal(t, "ORD-000042", NumberFromTime(time.UnixMilli(42)))
}

func TestNumberFromTime_SameMillisecondCollides(t *testing.T) {
	at := time.UnixMilli(1_723_456_789_123)
	assert.Equal(t, NumberFromTime(at), NumberFromTime(at))
}

func TestRandomNumber(t *testing.T) {
	for range 100 {
		assert.Regexp(t, `^ORD-\d{6}$`, RandomNumber())
	}
}
