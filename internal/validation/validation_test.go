package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	PlacementID   string    `json:"placement_id" validate:"required"`
	ScheduledDate time.Time `json:"scheduled_date" validate:"required"`
	TriggerEvent  string    `json:"trigger_event" validate:"required,max=64"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{TriggerEvent: "guarantee_expired"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Contains(t, err.Error(), "placement_id required")
	assert.Contains(t, err.Error(), "scheduled_date required")

	assert.NoError(t, Struct(sample{PlacementID: "p", ScheduledDate: time.Now(), TriggerEvent: "manual"}))
}
