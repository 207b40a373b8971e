// parol6-commander is the motion-control daemon for the PAROL6 arm:
// UDP command/ack channels, a 100 Hz trajectory executor over the
// serial link, and a websocket status feed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/parol-robotics/go-parol6/internal/config"
	"github.com/parol-robotics/go-parol6/internal/log"
	"github.com/parol-robotics/go-parol6/pkg/commander"
	"github.com/parol-robotics/go-parol6/pkg/executor"
	"github.com/parol-robotics/go-parol6/pkg/hardware"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
	"github.com/parol-robotics/go-parol6/pkg/planner"
	"github.com/parol-robotics/go-parol6/pkg/safety"
	"github.com/parol-robotics/go-parol6/pkg/telemetry"
	"github.com/parol-robotics/go-parol6/pkg/web"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	link, err := openLink(cfg)
	if err != nil {
		log.Error("failed to open hardware link", "err", err)
		os.Exit(1)
	}
	defer link.Close()

	model := cfg.Model()
	sup := safety.NewSupervisor(model, cfg.Safety)
	solver := kinematics.NewSolver(model, cfg.Solver)
	plan := planner.New(model, solver)
	exec := executor.New(model, link, sup, cfg.TickInterval)

	srv := web.NewServer(cfg.WebAddr, exec)
	pubs := commander.MultiPublisher{srv}
	var mirror *telemetry.Mirror
	if cfg.MQTTBroker != "" {
		mirror = telemetry.NewMirror(cfg.MQTTBroker, cfg.MQTTTopic)
		defer mirror.Close()
		pubs = append(pubs, mirror)
	}

	cmdr, err := commander.New(&cfg, model, plan, sup, exec, pubs, commander.AckOnCompleted)
	if err != nil {
		log.Error("failed to build commander", "err", err)
		os.Exit(1)
	}
	status := commander.NewStatusPublisher(exec, pubs, cfg.StatusRateHz)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go exec.Run(ctx)
	go status.Run(ctx)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error("status feed server failed", "err", err)
			cancel()
		}
	}()

	if err := cmdr.Run(ctx); err != nil {
		log.Error("commander failed", "err", err)
		os.Exit(1)
	}
}

// parseFlags loads the config file (when given) and applies flag
// overrides on top.
func parseFlags() config.Config {
	configPath := flag.String("config", "", "Path to JSON config file")
	port := flag.String("port", "", "Serial port of the controller board")
	sim := flag.Bool("sim", false, "Use the in-memory simulator instead of hardware")
	commandAddr := flag.String("command-addr", "", "UDP command listen address")
	webAddr := flag.String("web-addr", "", "Status feed HTTP/WS address")
	mqttBroker := flag.String("mqtt", "", "MQTT broker URL for the telemetry mirror")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	if *port != "" {
		cfg.Port = *port
	}
	if *sim {
		cfg.Sim = true
	}
	if *commandAddr != "" {
		cfg.CommandAddr = *commandAddr
	}
	if *webAddr != "" {
		cfg.WebAddr = *webAddr
	}
	if *mqttBroker != "" {
		cfg.MQTTBroker = *mqttBroker
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	return cfg
}

// openLink picks the simulator or the serial board per config.
func openLink(cfg config.Config) (hardware.Link, error) {
	if cfg.Sim {
		log.Info("using simulated hardware link")
		return hardware.NewSimLink(cfg.Model().Home), nil
	}
	log.Info("opening serial link", "port", cfg.Port, "baudrate", cfg.Baudrate)
	return hardware.OpenSerial(cfg.Port, cfg.Baudrate, cfg.Timeout)
}
