package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parol-robotics/go-parol6/pkg/executor"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

type staticState struct {
	st executor.RobotState
}

func (s staticState) Snapshot() executor.RobotState { return s.st }

func testServer() *Server {
	return NewServer(":0", staticState{st: executor.RobotState{
		Joints:    kinematics.JointAngles{0, -90, 90, 0, 0, 0},
		Phase:     executor.PhaseIdle,
		LoopHz:    99.8,
		Timestamp: time.Now(),
	}})
}

func TestHealthz(t *testing.T) {
	s := testServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]interface{}
	data, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "idle", body["phase"])
	assert.InDelta(t, 99.8, body["loop_hz"].(float64), 1e-9)
}

func TestStateSnapshotRoute(t *testing.T) {
	s := testServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/state", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var st executor.RobotState
	data, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, executor.PhaseIdle, st.Phase)
	assert.InDelta(t, -90.0, st.Joints[1], 1e-9)
}

func TestPublishUnknownTopicIsDropped(t *testing.T) {
	s := testServer()
	// Must not panic or create a hub on the fly.
	s.Publish("bogus", map[string]int{"x": 1})
	assert.Nil(t, s.Hub("bogus"))
	assert.NotNil(t, s.Hub("joints"))
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	s := testServer()
	resp, err := s.app.Test(httptest.NewRequest("GET", "/ws/status", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 426, resp.StatusCode, "plain GET on a ws route is rejected")
}
