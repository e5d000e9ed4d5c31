package events

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/intentline-hq/intentline/pkg/logger"
	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	id := common.HexToHash("0x01")
	e := New(TypeRegistered, id)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, TypeRegistered, e.Type)
	assert.Equal(t, id, e.IntentID)
	assert.False(t, e.Timestamp.IsZero())

	other := New(TypeRegistered, id)
	assert.NotEqual(t, e.ID, other.ID, "event ids must be unique")
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	id := common.HexToHash("0x02")

	require.NoError(t, sink.Emit(New(TypeRegistered, id)))

	changed := New(TypeStatusChanged, id)
	changed.OldStatus = models.StatusPending
	changed.NewStatus = models.StatusParsed
	require.NoError(t, sink.Emit(changed))

	assert.Equal(t, 2, sink.Len())
	assert.Len(t, sink.ByType(TypeStatusChanged), 1)
	assert.Empty(t, sink.ByType(TypeExecuted))

	all := sink.Events()
	require.Len(t, all, 2)
	assert.Equal(t, TypeRegistered, all[0].Type)
	assert.Equal(t, models.StatusParsed, all[1].NewStatus)
}

// failingSink always errors to exercise the broker's skip-and-continue path
type failingSink struct{}

func (failingSink) Emit(Event) error { return errors.New("sink down") }
func (failingSink) Close() error     { return nil }

func TestBrokerFanOut(t *testing.T) {
	first := NewMemorySink()
	second := NewMemorySink()
	broker := NewBroker(&logger.EmptyLogger{}, first, failingSink{}, second)

	e := New(TypeExecuted, common.HexToHash("0x03"))
	require.NoError(t, broker.Emit(e), "a failing sink must not fail the emit")

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 1, second.Len())
	require.NoError(t, broker.Close())
}
