package payment

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxGateway_CreatePaymentIntent(t *testing.T) {
	ctx := context.Background()
	g := NewSandboxGateway()

	intent, err := g.CreatePaymentIntent(ctx, "booking-1", 744)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(intent.ID, "pi_"))
	assert.Contains(t, intent.ClientSecret, intent.ID)
	assert.Equal(t, int64(744), intent.Amount)

	found, ok := g.Lookup(intent.ID)
	assert.True(t, ok)
	assert.Equal(t, "booking-1", found.BookingID)

	_, err = g.CreatePaymentIntent(ctx, "booking-2", 0)
	assert.Error(t, err)
}
