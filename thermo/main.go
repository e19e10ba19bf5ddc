// Command thermo is the host side of the heater regulator. It monitors the
// firmware over a serial port, runs a simulated regulator, probes an AD7190
// on a Linux SPI port or summarizes a recorded run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.viam.com/utils"

	"github.com/itohio/gothermo/pkg/ad7190"
	"github.com/itohio/gothermo/pkg/analysis"
	"github.com/itohio/gothermo/pkg/command"
	"github.com/itohio/gothermo/pkg/config"
	"github.com/itohio/gothermo/pkg/link"
	"github.com/itohio/gothermo/pkg/pid"
	"github.com/itohio/gothermo/pkg/spibus"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Run a simulated regulator instead of the serial device")
		probeFlag    = flag.Bool("probe", false, "Read the AD7190 directly over Linux SPI")
		analyzeFlag  = flag.String("analyze", "", "Summarize a recorded report file and exit")
		listFlag     = flag.Bool("list", false, "List serial ports and exit")
		cmdFlag      = flag.String("cmd", "", "Commands to send after connecting, separated by ';' (e.g. \"kp 300; heat 1\")")
		recordFlag   = flag.String("record", "", "Append reports to this file (overrides config)")
		durationFlag = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
		windowFlag   = flag.Float64("window", 60, "Summary window in seconds of report time")
		pointsFlag   = flag.Int("points", 0, "With -analyze, also print a trace decimated to this many reports")
		saveFlag     = flag.Bool("save-config", false, "Write the effective configuration and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		golog.NewDevelopmentLogger("thermo").Fatalw("failed to load configuration", "error", err)
	}
	logger, err := newLogger("thermo", cfg.Log.Debug)
	if err != nil {
		golog.NewDevelopmentLogger("thermo").Fatalw("failed to create logger", "error", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *recordFlag != "" {
		cfg.Log.RecordFile = *recordFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *durationFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *durationFlag)
		defer cancel()
	}

	switch {
	case *saveFlag:
		err = cfg.Save(*configFlag)
	case *listFlag:
		err = listPorts()
	case *analyzeFlag != "":
		err = analyze(*analyzeFlag, *pointsFlag)
	case *probeFlag:
		err = probe(ctx, cfg, logger)
	default:
		err = monitor(ctx, cfg, *mockFlag, *cmdFlag, *windowFlag, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Fatal(err)
	}
}

func newLogger(name string, debug bool) (golog.Logger, error) {
	if debug {
		return golog.NewDevelopmentLogger(name), nil
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar().Named(name), nil
}

func listPorts() error {
	ports, err := link.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
	return nil
}

func analyze(path string, points int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reports, skipped, err := analysis.Load(f)
	if err != nil {
		return err
	}
	s, err := analysis.Summarize(reports)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Print(s.String())
	if skipped > 0 {
		fmt.Printf("skipped:     %d lines\n", skipped)
	}
	if points > 0 {
		for _, r := range analysis.Downsample(nil, reports, points) {
			fmt.Print(r.String())
		}
	}
	return nil
}

func parseCommands(s string) ([]command.Command, error) {
	var cmds []command.Command
	for _, line := range strings.Split(s, ";") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c, err := command.Parse(line)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func monitor(ctx context.Context, cfg *config.Config, mock bool, cmds string, span float64, logger golog.Logger) (err error) {
	commands, err := parseCommands(cmds)
	if err != nil {
		return err
	}

	var dev link.Device
	if mock {
		m, err := link.NewMock(cfg, nil, logger.Named("sim"))
		if err != nil {
			return err
		}
		dev = m
	} else {
		dev = link.New(cfg.Serial.Port, cfg.Serial.BaudRate, 0, logger.Named("serial"))
	}

	var record *os.File
	if cfg.Log.RecordFile != "" {
		record, err = os.OpenFile(cfg.Log.RecordFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open record file: %w", err)
		}
		defer func() { err = multierr.Append(err, record.Close()) }()
	}

	logger.Infow("connecting", "mock", mock, "port", cfg.Serial.Port)
	if err := dev.Connect(); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dev.Close()) }()

	for _, c := range commands {
		if err := dev.Send(c); err != nil {
			return err
		}
		logger.Infow("sent command", "command", strings.TrimSpace(c.String()))
	}

	window := analysis.NewWindow(span)
	window.OnUpdate(func(reports []pid.Report, s analysis.Summary) {
		r := reports[len(reports)-1]
		logger.Infow("report",
			"t", r.Elapsed,
			"temp", r.Temperature,
			"error", r.Error,
			"out", r.Output,
			"drive", r.Drive,
			"mean", s.MeanTemp,
			"drift", s.Drift,
		)
	})

	var line []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-dev.Reports():
			if !ok {
				return errors.New("device closed the report stream")
			}
			window.Add(r)
			if record != nil {
				line = r.AppendFormat(line[:0])
				if _, err := record.Write(line); err != nil {
					return fmt.Errorf("failed to record report: %w", err)
				}
			}
		}
	}
}

func probe(ctx context.Context, cfg *config.Config, logger golog.Logger) (err error) {
	bus, err := spibus.Open(cfg.ADC.SPIDevice, cfg.ADC.SPIFrequency)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, bus.Close()) }()

	devCfg, err := cfg.ADC.Device()
	if err != nil {
		return err
	}
	sensor, errCh, err := cfg.ADC.Channels()
	if err != nil {
		return err
	}

	adc := ad7190.New(bus, nil, cfg.ADC.VRef)
	id, err := adc.ID()
	if err != nil {
		return err
	}
	logger.Infow("found converter", "id", fmt.Sprintf("%#02x", id))

	if err := adc.Init(devCfg); err != nil {
		return fmt.Errorf("failed to initialize converter: %w", err)
	}
	logger.Infow("converter ready", "full_scale", adc.FullScale(), "gain", devCfg.Gain.Factor())

	for {
		v, err := adc.ReadConversion(ctx, sensor)
		if err != nil {
			return err
		}
		e, err := adc.ReadConversion(ctx, errCh)
		if err != nil {
			return err
		}
		logger.Infow("conversion",
			"sensor", v,
			"temperature", pid.Temperature(v),
			"error", e,
		)
		if !utils.SelectContextOrWait(ctx, time.Second) {
			return ctx.Err()
		}
	}
}
