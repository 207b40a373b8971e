// Package config loads commander configuration from a JSON file with
// environment-variable overrides for deployment-specific settings.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
	"github.com/parol-robotics/go-parol6/pkg/safety"
)

// Config is the full commander configuration. Zero values are filled with
// defaults by Validate, so a minimal file only needs the serial port.
type Config struct {
	// Serial link settings. Sim switches to the loopback link instead.
	Port     string        `json:"port,omitempty"`
	Baudrate int           `json:"baudrate,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	Sim      bool          `json:"sim,omitempty"`

	// Network endpoints.
	CommandAddr string `json:"command_addr,omitempty"` // UDP command channel
	AckAddr     string `json:"ack_addr,omitempty"`     // UDP ack channel
	WebAddr     string `json:"web_addr,omitempty"`     // status feed HTTP/WS

	// Status publishing.
	StatusRateHz    float64 `json:"status_rate_hz,omitempty"`
	MaxStatusRateHz float64 `json:"max_status_rate_hz,omitempty"`

	// Optional MQTT mirror of the status topic. Empty broker disables it.
	MQTTBroker string `json:"mqtt_broker,omitempty"`
	MQTTTopic  string `json:"mqtt_topic,omitempty"`

	// Control loop.
	TickInterval time.Duration `json:"tick_interval,omitempty"`

	// Kinematics overrides.
	TCP    *kinematics.Pose                             `json:"tcp,omitempty"`
	Limits *[kinematics.NumJoints]kinematics.JointLimit `json:"joint_limits,omitempty"`
	Solver kinematics.SolverConfig                      `json:"solver,omitempty"`
	Safety safety.Config                                `json:"safety,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Baudrate:        3000000,
		Timeout:         5 * time.Second,
		CommandAddr:     ":5001",
		AckAddr:         ":5002",
		WebAddr:         ":8090",
		StatusRateHz:    20,
		MaxStatusRateHz: 100,
		MQTTTopic:       "parol6/status",
		TickInterval:    10 * time.Millisecond,
		Solver:          kinematics.DefaultSolverConfig(),
		Safety:          safety.DefaultConfig(),
		LogLevel:        "info",
	}
}

// Load reads a JSON config file, applies env overrides and validates.
// An empty path loads defaults plus env overrides only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading config %s", path)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets deployment scripts override endpoints without editing the
// config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PAROL6_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("PAROL6_COMMAND_ADDR"); v != "" {
		c.CommandAddr = v
	}
	if v := os.Getenv("PAROL6_ACK_ADDR"); v != "" {
		c.AckAddr = v
	}
	if v := os.Getenv("PAROL6_WEB_ADDR"); v != "" {
		c.WebAddr = v
	}
	if v := os.Getenv("PAROL6_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("PAROL6_SIM"); v != "" {
		if sim, err := strconv.ParseBool(v); err == nil {
			c.Sim = sim
		}
	}
	if v := os.Getenv("PAROL6_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate fills defaults and rejects configurations the commander cannot
// run with.
func (c *Config) Validate() error {
	if c.Port == "" && !c.Sim {
		return errors.New("serial port must be specified unless sim mode is enabled")
	}
	if c.Baudrate == 0 {
		c.Baudrate = 3000000
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.CommandAddr == "" {
		c.CommandAddr = ":5001"
	}
	if c.AckAddr == "" {
		c.AckAddr = ":5002"
	}
	if c.WebAddr == "" {
		c.WebAddr = ":8090"
	}
	if c.MaxStatusRateHz == 0 {
		c.MaxStatusRateHz = 100
	}
	if c.StatusRateHz == 0 {
		c.StatusRateHz = 20
	}
	if c.StatusRateHz > c.MaxStatusRateHz {
		c.StatusRateHz = c.MaxStatusRateHz
	}
	if c.MQTTTopic == "" {
		c.MQTTTopic = "parol6/status"
	}
	if c.TickInterval == 0 {
		c.TickInterval = 10 * time.Millisecond
	}
	if c.Solver.MaxIterations == 0 {
		c.Solver = kinematics.DefaultSolverConfig()
	}
	// Mask is not serialized; a file-loaded solver section would
	// otherwise constrain no axes at all.
	if c.Solver.Mask == (kinematics.AxisMask{}) {
		c.Solver.Mask = kinematics.FullMask()
	}
	if c.Safety.StaleTicks == 0 {
		c.Safety = safety.DefaultConfig()
	}
	if c.Limits != nil {
		for i, lim := range c.Limits {
			if lim.Min >= lim.Max {
				return errors.Errorf("joint_limits[%d]: min %.2f must be below max %.2f", i, lim.Min, lim.Max)
			}
		}
	}
	return nil
}

// Model builds the kinematic model with the configured overrides applied.
func (c *Config) Model() *kinematics.Model {
	m := kinematics.DefaultModel()
	if c.Limits != nil {
		m = m.WithLimits(*c.Limits)
	}
	if c.TCP != nil {
		m = m.WithTCP(*c.TCP)
	}
	return m
}
