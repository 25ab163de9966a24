package automation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/eventbus"
)

func TestParseCondition_FieldEquals(t *testing.T) {
	cond := parseCondition("value == 'doing'", "stage")

	require.True(t, cond(eventbus.Event{Payload: map[string]any{"stage": "doing"}}))
	require.False(t, cond(eventbus.Event{Payload: map[string]any{"stage": "backlog"}}))
}

func TestParseCondition_FieldNotEquals(t *testing.T) {
	cond := parseCondition("value != 'done'", "stage")

	require.True(t, cond(eventbus.Event{Payload: map[string]any{"stage": "doing"}}))
	require.False(t, cond(eventbus.Event{Payload: map[string]any{"stage": "done"}}))
}

func TestParseCondition_ThresholdWithoutField(t *testing.T) {
	cond := parseCondition("pending_count >= 5", "")

	require.True(t, cond(eventbus.Event{Payload: map[string]any{"pending_count": 5}}))
	require.True(t, cond(eventbus.Event{Payload: map[string]any{"pending_count": 7}}))
	require.False(t, cond(eventbus.Event{Payload: map[string]any{"pending_count": 4}}))
}

func TestParseCondition_ThresholdAcceptsFloatPayload(t *testing.T) {
	cond := parseCondition("pending_count >= 5", "")

	require.True(t, cond(eventbus.Event{Payload: map[string]any{"pending_count": 5.0}}))
}

func TestParseCondition_UnrecognizedExpressionMatchesEverything(t *testing.T) {
	cond := parseCondition("anything goes here", "")

	require.True(t, cond(eventbus.Event{}))
	require.True(t, cond(eventbus.Event{Payload: map[string]any{"stage": "doing"}}))
}

func TestToInt(t *testing.T) {
	require.Equal(t, 3, toInt(3))
	require.Equal(t, 3, toInt(int64(3)))
	require.Equal(t, 3, toInt(3.9))
	require.Equal(t, 0, toInt("nope"))
}
