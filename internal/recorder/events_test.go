package recorder

import (
	"fmt"
	"strings"
	"testing"

	"github.com/99souls/flagengine/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRecorderEnqueuesValidEvent(t *testing.T) {
	r := NewEventRecorder(10)
	err := r.Record(dto.Event{Key: "k1", TrafficTypeName: "user", EventTypeID: "purchase"})
	require.NoError(t, err)

	batch := r.Drain(10)
	require.Len(t, batch, 1)
	assert.Equal(t, "purchase", batch[0].EventTypeID)
}

func TestEventRecorderRejectsTooManyProperties(t *testing.T) {
	r := NewEventRecorder(10)
	props := make(map[string]interface{}, dto.MaxPropertiesCount+1)
	for i := 0; i < dto.MaxPropertiesCount+1; i++ {
		props[fmt.Sprintf("p%d", i)] = i
	}
	err := r.Record(dto.Event{Key: "k1", Properties: props})
	assert.ErrorIs(t, err, ErrPropertiesTooLarge)
}

func TestEventRecorderRejectsOversizeProperties(t *testing.T) {
	r := NewEventRecorder(10)
	big := strings.Repeat("x", dto.MaxPropertiesBytes+1)
	err := r.Record(dto.Event{Key: "k1", Properties: map[string]interface{}{"blob": big}})
	assert.ErrorIs(t, err, ErrPropertiesTooLarge)
}

func TestEventRecorderRequeueAfterFailedFlush(t *testing.T) {
	r := NewEventRecorder(10)
	require.NoError(t, r.Record(dto.Event{Key: "k1"}))
	batch := r.Drain(10)
	require.Len(t, batch, 1)

	r.Requeue(batch)
	assert.Len(t, r.Drain(10), 1)
}
