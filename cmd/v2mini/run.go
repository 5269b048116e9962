package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cjeanneret/v2mini/internal/config"
	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/cjeanneret/v2mini/internal/hw/bus"
	"github.com/cjeanneret/v2mini/internal/hw/face"
	"github.com/cjeanneret/v2mini/internal/hw/gpio"
	"github.com/cjeanneret/v2mini/internal/hw/motorboard"
	"github.com/cjeanneret/v2mini/internal/logic/actuator"
	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/expression"
	"github.com/cjeanneret/v2mini/internal/logic/joint"
	"github.com/cjeanneret/v2mini/internal/logic/manual"
	"github.com/cjeanneret/v2mini/internal/logic/motion"
	"github.com/cjeanneret/v2mini/internal/web"
	"go.uber.org/multierr"
)

type RunCommand struct {
	Config string `short:"c" long:"config" default:"configs/default.yaml" description:"Path to config file"`
	Web    string `long:"web" description:"Web listen address, overrides web.addr (\"off\" disables the server)"`
	Debug  int    `short:"d" long:"debug" default:"-1" description:"Debug level 0-4, overrides defaults.debug_level"`
}

func (c *RunCommand) Execute(args []string) error {
	cfgPath := filepath.Clean(c.Config)
	if err := config.ValidateConfigPath(cfgPath); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if err := applyOverrides(cfg, c.Web, c.Debug); err != nil {
		return err
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, err := buildRobot(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			debug.Error(fmt.Errorf("shutdown: %w", err))
		}
		debug.Summary(fmt.Sprintf("v2mini stopped after %d ticks", r.ctrl.Ticks()))
	}()
	return r.run(ctx, cfg)
}

// applyOverrides mutates cfg with CLI overrides. An empty web address and a
// negative debug level leave the config untouched.
func applyOverrides(cfg *config.Config, webAddr string, debugLevel int) error {
	switch webAddr {
	case "":
	case "off":
		cfg.Web.Addr = ""
	default:
		cfg.Web.Addr = webAddr
	}
	if debugLevel >= 0 {
		if debugLevel > debug.LevelTrace {
			return fmt.Errorf("debug level must be 0-%d, got %d", debug.LevelTrace, debugLevel)
		}
		cfg.Defaults.DebugLevel = debugLevel
	}
	return nil
}

// robot holds the opened devices and the loop built over them.
type robot struct {
	gpio   gpio.Driver
	board  motorboard.Link
	pan    bus.Servo
	intake *command.Intake
	ctrl   *motion.Controller
	limits web.Limits
}

func buildRobot(cfg *config.Config) (r *robot, err error) {
	r = &robot{intake: command.NewIntake()}
	defer func() {
		if err != nil {
			err = multierr.Append(err, r.Close())
			r = nil
		}
	}()

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	if r.gpio, err = gpio.NewDriver(cfg.Defaults.MockGPIO); err != nil {
		return r, fmt.Errorf("init GPIO failed: %w", err)
	}

	debug.Step(2, "Opening motor board")
	if r.board, err = openBoard(cfg); err != nil {
		return r, err
	}

	debug.Step(3, "Opening pan servo bus")
	debug.PrintStruct("Pan config", cfg.Pan)
	if r.pan, err = bus.Open(cfg.Pan); err != nil {
		return r, fmt.Errorf("open pan servo: %w", err)
	}

	debug.Step(4, "Building joints")
	group, err := actuator.NewGroup(&boardActuators{link: r.board, cfg: cfg.Actuators}, actuatorParams(cfg), actuatorSettings(cfg))
	if err != nil {
		return r, err
	}
	pan, err := joint.NewPan(r.pan, cfg.Pan.Center, cfg.Pan.Deviation, cfg.Pan.Speed)
	if err != nil {
		return r, err
	}
	height, err := joint.NewHeight(boardServo{link: r.board, channel: cfg.Height.Servo}, cfg.Height.Min, cfg.Height.Max, cfg.HeightIncrement())
	if err != nil {
		return r, err
	}

	debug.Step(5, "Building expression display")
	led, _ := r.pan.(bus.LED)
	display, err := face.New(r.board, cfg.Face.Servos, r.gpio, cfg.Face.EyePins, led, bus.LEDPurple)
	if err != nil {
		return r, err
	}
	machine := expression.NewMachine(display, cfg.FaceTimeout(), cfg.Face.LegacyTimeoutCompare)

	var panel *manual.Panel
	if cfg.Manual.Enabled {
		debug.Step(6, "Configuring button panel")
		if panel, err = manual.NewPanel(r.gpio, cfg.Manual.Pins); err != nil {
			return r, err
		}
	}

	r.ctrl, err = motion.NewController(motion.Parts{
		Intake:    r.intake,
		Panel:     panel,
		Face:      machine,
		Height:    height,
		Pan:       pan,
		Actuators: group,
	}, motion.Timing{Period: cfg.Period(), Poll: cfg.PollInterval()}, motion.SystemClock)
	if err != nil {
		return r, err
	}
	r.limits = limitsFor(cfg, pan)
	return r, nil
}

func limitsFor(cfg *config.Config, pan *joint.Pan) web.Limits {
	lo, hi := pan.Limits()
	l := web.Limits{
		PeriodMs:  cfg.Loop.PeriodMs,
		PanMin:    lo,
		PanMax:    hi,
		HeightMin: cfg.Height.Min,
		HeightMax: cfg.Height.Max,
	}
	for _, a := range cfg.Actuators {
		l.Actuators = append(l.Actuators, web.ActuatorSpan{Name: a.Name, Min: a.Min, Max: a.Max})
	}
	for e := expression.Expression(0); e < expression.Count; e++ {
		l.Expressions = append(l.Expressions, e.String())
	}
	return l
}

// run homes the robot, then runs the loop and, when configured, the web
// server until ctx is cancelled or the server fails.
func (r *robot) run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if cfg.Web.Addr != "" {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		defer debug.SetOutput(os.Stdout)

		srv, err := web.NewServer(cfg.Web.Addr, broadcaster, r.intake, r.ctrl, r.limits)
		if err != nil {
			return err
		}
		r.ctrl.OnTick(srv.Publish)
		go func() {
			err := srv.Run(ctx)
			if err != nil {
				cancel()
			}
			webErr <- err
		}()
	} else {
		webErr <- nil
	}

	if err := r.ctrl.Home(); err != nil {
		cancel()
		return multierr.Append(fmt.Errorf("homing failed: %w", err), <-webErr)
	}

	debug.Section("Running")
	loopErr := r.ctrl.Run(ctx)
	if err := <-webErr; err != nil {
		loopErr = multierr.Append(loopErr, fmt.Errorf("web server: %w", err))
	}
	return loopErr
}

// Close releases every device that was opened.
func (r *robot) Close() error {
	var err error
	if r.board != nil {
		err = multierr.Append(err, r.board.Close())
	}
	if r.pan != nil {
		err = multierr.Append(err, r.pan.Close())
	}
	if r.gpio != nil {
		err = multierr.Append(err, r.gpio.Close())
	}
	return err
}
