package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusAwaitingRestaurant, StatusConfirmed}: true,
		{StatusAwaitingRestaurant, StatusCancelled}: true,
		{StatusConfirmed, StatusPreparing}:          true,
		{StatusConfirmed, StatusCancelled}:          true,
		{StatusPreparing, StatusReady}:              true,
		{StatusPreparing, StatusCancelled}:          true,
		{StatusReady, StatusOutForDelivery}:         true,
		{StatusOutForDelivery, StatusDelivered}:     true,
	}

	for _, from := range Statuses() {
		for _, to := range Statuses() {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range Statuses() {
		want := s == StatusDelivered || s == StatusCancelled
		assert.Equal(t, want, s.Terminal(), s)
		assert.Equal(t, want, len(s.Next()) == 0, s)
	}
	assert.False(t, Status("LOST").Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("PREPARING")
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, s)

	_, err = ParseStatus("preparing")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestMilestones_Stamp(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var m Milestones
	m.stamp(StatusAwaitingRestaurant, at)
	assert.Equal(t, Milestones{}, m)

	m.stamp(StatusOutForDelivery, at)
	require.NotNil(t, m.DispatchedAt)
	got, ok := m.Reached(StatusOutForDelivery)
	assert.True(t, ok)
	assert.Equal(t, at, got)

	_, ok = m.Reached(StatusReady)
	assert.False(t, ok)
}

func TestNext_ReturnsCopy(t *testing.T) {
	next := StatusAwaitingRestaurant.Next()
	next[0] = StatusDelivered
	assert.True(t, CanTransition(StatusAwaitingRestaurant, StatusConfirmed))
}
