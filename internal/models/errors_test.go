package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind   ErrorKind
		status int
	}{
		{KindBadRequest, fiber.StatusBadRequest},
		{KindUnauthorized, fiber.StatusUnauthorized},
		{KindForbidden, fiber.StatusForbidden},
		{KindNotFound, fiber.StatusNotFound},
		{KindConflict, fiber.StatusConflict},
		{KindValidation, fiber.StatusUnprocessableEntity},
		{KindRateLimited, fiber.StatusTooManyRequests},
		{KindInternal, fiber.StatusInternalServerError},
		{KindServiceUnavailable, fiber.StatusServiceUnavailable},
		{ErrorKind("unknown"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, HTTPStatus(tc.kind), string(tc.kind))
	}
}

func TestAsAppError_WrapsUnknown(t *testing.T) {
	err := AsAppError(errors.New("boom"))
	assert.Equal(t, KindInternal, err.Kind)
	assert.Equal(t, "Internal server error", err.Message)
}

func TestAsAppError_UnwrapsWrapped(t *testing.T) {
	orig := NewNotAParticipantError(7)
	err := AsAppError(fmt.Errorf("handling event: %w", orig))
	assert.Equal(t, "NotAParticipant", err.Code)
	assert.Equal(t, KindForbidden, err.Kind)
}

func TestDeliveryTransitions(t *testing.T) {
	assert.True(t, CanTransition(DeliveryPending, DeliveryDelivered))
	assert.True(t, CanTransition(DeliveryPending, DeliveryRead))
	assert.True(t, CanTransition(DeliveryDelivered, DeliveryRead))

	// Downgrades and no-ops are refused.
	assert.False(t, CanTransition(DeliveryRead, DeliveryDelivered))
	assert.False(t, CanTransition(DeliveryDelivered, DeliveryPending))
	assert.False(t, CanTransition(DeliveryRead, DeliveryRead))
	assert.False(t, CanTransition("bogus", DeliveryRead))

	// These sets scope the repository's status-update WHERE clauses.
	assert.Equal(t, []string{DeliveryPending}, DeliveryStatusesBefore(DeliveryDelivered))
	assert.Equal(t, []string{DeliveryPending, DeliveryDelivered}, DeliveryStatusesBefore(DeliveryRead))
	assert.Empty(t, DeliveryStatusesBefore(DeliveryPending))
}
