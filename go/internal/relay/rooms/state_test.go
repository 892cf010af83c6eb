package rooms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateUnmarshalClassifiesScalars(t *testing.T) {
	var state State
	err := json.Unmarshal([]byte(`{"isPlaying":true,"remainingTime":55,"name":"semifinal"}`), &state)
	require.NoError(t, err)

	require.Equal(t, Bool(true), state["isPlaying"])
	require.Equal(t, Number(55), state["remainingTime"])
	require.Equal(t, String("semifinal"), state["name"])
}

func TestStateUnmarshalPassesThroughNonScalars(t *testing.T) {
	var state State
	err := json.Unmarshal([]byte(`{"extras":{"court":3},"tags":[1,2],"missing":null}`), &state)
	require.NoError(t, err)

	require.Equal(t, KindRaw, state["extras"].Kind())
	require.Equal(t, KindRaw, state["tags"].Kind())
	require.Equal(t, KindRaw, state["missing"].Kind())

	// Unrecognized shapes come back out byte-for-byte.
	out, err := json.Marshal(state["extras"])
	require.NoError(t, err)
	require.JSONEq(t, `{"court":3}`, string(out))
}

func TestValueText(t *testing.T) {
	require.Equal(t, "7", Number(7).Text())
	require.Equal(t, "7.5", Number(7.5).Text())
	require.Equal(t, "final", String("final").Text())
	require.Equal(t, "true", Bool(true).Text())
}

func TestStateMarshalRoundTrip(t *testing.T) {
	state := State{
		"isPlaying":     Bool(false),
		"remainingTime": Number(60),
		"admin":         String("session-a"),
	}
	out, err := json.Marshal(state)
	require.NoError(t, err)
	require.JSONEq(t, `{"isPlaying":false,"remainingTime":60,"admin":"session-a"}`, string(out))
}

func TestStateNumberAccessor(t *testing.T) {
	state := State{"endTimerTime": Number(1000), "name": String("x")}

	n, ok := state.Number("endTimerTime")
	require.True(t, ok)
	require.Equal(t, float64(1000), n)

	_, ok = state.Number("name")
	require.False(t, ok)
	_, ok = state.Number("absent")
	require.False(t, ok)
}
