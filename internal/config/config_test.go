package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

func TestDefaultValidatesInSimMode(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "no port and no sim must be rejected")

	cfg.Sim = true
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":5001", cfg.CommandAddr)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, kinematics.FullMask(), cfg.Solver.Mask)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"port": "/dev/ttyACM0",
		"baudrate": 115200,
		"command_addr": ":6001",
		"status_rate_hz": 50,
		"solver": {"max_iterations": 80, "damping": 0.1},
		"tcp": {"x": 0, "y": 0, "z": 25, "rx": 0, "ry": 0, "rz": 0}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, 115200, cfg.Baudrate)
	assert.Equal(t, ":6001", cfg.CommandAddr)
	assert.Equal(t, 50.0, cfg.StatusRateHz)
	assert.Equal(t, 80, cfg.Solver.MaxIterations)
	assert.Equal(t, kinematics.FullMask(), cfg.Solver.Mask, "file-loaded solver keeps the full mask")
	assert.Equal(t, ":5002", cfg.AckAddr, "unset fields keep defaults")

	m := cfg.Model()
	assert.Equal(t, 25.0, m.TCP.Z)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAROL6_PORT", "/dev/ttyUSB7")
	t.Setenv("PAROL6_COMMAND_ADDR", ":7001")
	t.Setenv("PAROL6_SIM", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB7", cfg.Port)
	assert.Equal(t, ":7001", cfg.CommandAddr)
	assert.True(t, cfg.Sim)
}

func TestStatusRateCapped(t *testing.T) {
	cfg := Default()
	cfg.Sim = true
	cfg.StatusRateHz = 500
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cfg.MaxStatusRateHz, cfg.StatusRateHz, "rate is capped at the maximum")
}

func TestInvalidLimitsRejected(t *testing.T) {
	cfg := Default()
	cfg.Sim = true
	limits := [kinematics.NumJoints]kinematics.JointLimit{
		{Min: 10, Max: -10}, // inverted
		{Min: -145, Max: -3},
		{Min: -107, Max: 107},
		{Min: -105, Max: 105},
		{Min: -122, Max: 122},
		{Min: -180, Max: 180},
	}
	cfg.Limits = &limits
	require.Error(t, cfg.Validate())
}

func TestLimitsOverrideReachesModel(t *testing.T) {
	cfg := Default()
	cfg.Sim = true
	limits := [kinematics.NumJoints]kinematics.JointLimit{
		{Min: -45, Max: 45},
		{Min: -145, Max: -3},
		{Min: -107, Max: 107},
		{Min: -105, Max: 105},
		{Min: -122, Max: 122},
		{Min: -180, Max: 180},
	}
	cfg.Limits = &limits
	require.NoError(t, cfg.Validate())

	m := cfg.Model()
	assert.Equal(t, 45.0, m.Limits[0].Max)
}
