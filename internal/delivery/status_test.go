package delivery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menukit/delivery-tracker/internal/delivery"
)

var allStatuses = []delivery.Status{
	delivery.StatusPending,
	delivery.StatusPreparing,
	delivery.StatusOutForDelivery,
	delivery.StatusInTransit,
	delivery.StatusDelivered,
	delivery.StatusCancelled,
}

// allowedEdges mirrors the transition table for exhaustive checking.
var allowedEdges = map[delivery.Status][]delivery.Status{
	delivery.StatusPending:        {delivery.StatusPreparing, delivery.StatusOutForDelivery, delivery.StatusCancelled},
	delivery.StatusPreparing:      {delivery.StatusOutForDelivery, delivery.StatusCancelled},
	delivery.StatusOutForDelivery: {delivery.StatusInTransit, delivery.StatusDelivered, delivery.StatusCancelled},
	delivery.StatusInTransit:      {delivery.StatusDelivered, delivery.StatusCancelled},
}

func isAllowed(from, to delivery.Status) bool {
	for _, allowed := range allowedEdges[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func TestTransition_EveryPair(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			next, err := delivery.Transition(from, to)
			if isAllowed(from, to) {
				assert.NoError(t, err, "%s -> %s should be allowed", from, to)
				assert.Equal(t, to, next)
			} else {
				require.Error(t, err, "%s -> %s should be rejected", from, to)
				assert.Equal(t, from, next, "rejected transition must not change status")

				var invalid *delivery.InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, from, invalid.Current)
				assert.Equal(t, to, invalid.Requested)
			}
		}
	}
}

func TestTransition_TerminalStatesAreClosed(t *testing.T) {
	for _, terminal := range []delivery.Status{delivery.StatusDelivered, delivery.StatusCancelled} {
		for _, to := range allStatuses {
			_, err := delivery.Transition(terminal, to)
			assert.Error(t, err, "%s -> %s must fail", terminal, to)
		}
	}
}

func TestTransition_DeliveredToOutForDelivery(t *testing.T) {
	_, err := delivery.Transition(delivery.StatusDelivered, delivery.StatusOutForDelivery)
	var invalid *delivery.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, delivery.StatusDelivered, invalid.Current)
	assert.Equal(t, delivery.StatusOutForDelivery, invalid.Requested)
}

func TestStatus_Tracking(t *testing.T) {
	assert.True(t, delivery.StatusOutForDelivery.Tracking())
	assert.True(t, delivery.StatusInTransit.Tracking())
	assert.False(t, delivery.StatusPending.Tracking())
	assert.False(t, delivery.StatusPreparing.Tracking())
	assert.False(t, delivery.StatusDelivered.Tracking())
	assert.False(t, delivery.StatusCancelled.Tracking())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, delivery.StatusDelivered.Terminal())
	assert.True(t, delivery.StatusCancelled.Terminal())
	assert.False(t, delivery.StatusInTransit.Terminal())
}

func TestAhead(t *testing.T) {
	assert.True(t, delivery.Ahead(delivery.StatusInTransit, delivery.StatusOutForDelivery))
	assert.True(t, delivery.Ahead(delivery.StatusDelivered, delivery.StatusInTransit))
	assert.True(t, delivery.Ahead(delivery.StatusCancelled, delivery.StatusPending))
	assert.False(t, delivery.Ahead(delivery.StatusPending, delivery.StatusPreparing))
	assert.False(t, delivery.Ahead(delivery.StatusInTransit, delivery.StatusInTransit))
	assert.False(t, delivery.Ahead(delivery.Status("bogus"), delivery.StatusPending))
}

func TestAhead_TerminalStatusIsNeverOvertaken(t *testing.T) {
	for _, terminal := range []delivery.Status{delivery.StatusDelivered, delivery.StatusCancelled} {
		for _, other := range allStatuses {
			assert.False(t, delivery.Ahead(other, terminal), "%s must not overtake %s", other, terminal)
		}
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, delivery.Status("unknown").Valid())
}
