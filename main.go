// Command labmonitor ingests lab sensor telemetry over MQTT, classifies the
// gas readings and shows them on a live terminal dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/labmonitor/internal/classify"
	"github.com/luki/labmonitor/internal/config"
	"github.com/luki/labmonitor/internal/httpapi"
	"github.com/luki/labmonitor/internal/inbox"
	"github.com/luki/labmonitor/internal/logging"
	"github.com/luki/labmonitor/internal/metrics"
	"github.com/luki/labmonitor/internal/monitor"
	"github.com/luki/labmonitor/internal/mqttio"
	"github.com/luki/labmonitor/internal/pipeline"
	"github.com/luki/labmonitor/internal/sensor"
	"github.com/luki/labmonitor/internal/store"
	"github.com/luki/labmonitor/internal/viewer"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "view" {
		if err := runViewer(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fs := flag.NewFlagSet("labmonitor", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	headless := fs.Bool("headless", false, "run without the dashboard, logging to stderr")
	fs.Usage = printHelp
	fs.Parse(os.Args[1:])

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage:")
	fmt.Println("  labmonitor [-config path] [-headless]")
	fmt.Println("  labmonitor view [-config path] [file.csv]")
	fmt.Println()
	fmt.Println("Dashboard keys: q quit, tab/1/2 charts, r raw table, e export CSV, j/k scroll")
}

func runViewer(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.Usage = printHelp
	fs.Parse(args)

	if fs.NArg() > 0 {
		return viewer.Run(fs.Args()[:1])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	files, err := store.ListFiles(cfg.DataDir)
	if err != nil || len(files) == 0 {
		return fmt.Errorf("%w in %s", viewer.ErrNoFiles, cfg.DataDir)
	}
	return viewer.Run(files)
}

func run(configPath string, headless bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var console io.Writer
	if headless {
		console = os.Stderr
	}
	lg, err := logging.New(cfg.Log, console)
	if err != nil {
		return err
	}
	defer lg.Close()
	log := lg.Logger

	log.Info("starting labmonitor", "broker", cfg.MQTT.BrokerURL(), "history", cfg.History.Size, "headless", headless)

	m := metrics.New()
	classifier := classify.Load(log, classify.Paths{
		MQ135: cfg.Models.MQ135,
		MQ2:   cfg.Models.MQ2,
		MQ7:   cfg.Models.MQ7,
	})

	in := inbox.New()
	client := mqttio.NewClient(cfg.MQTT, mqttio.NewReceiver(in, log, m), log, m)

	var publisher pipeline.Publisher
	connectErr := client.Connect()
	if connectErr != nil {
		log.Error("mqtt connection failed", "error", connectErr)
	} else {
		publisher = client
	}
	defer client.Disconnect()

	var recorder pipeline.Recorder
	var recordDir string
	if cfg.Record {
		ds, err := store.New(cfg.DataDir)
		if err != nil {
			log.Error("recording disabled", "error", err)
		} else {
			defer ds.Close()
			recorder = ds
			recordDir = ds.Dir()
		}
	}

	engine := pipeline.New(pipeline.Options{
		Topics: pipeline.Topics{
			Data: cfg.MQTT.Topics.Data,
			Predictions: [3]string{
				sensor.MQ135: cfg.MQTT.Topics.PredMQ135,
				sensor.MQ2:   cfg.MQTT.Topics.PredMQ2,
				sensor.MQ7:   cfg.MQTT.Topics.PredMQ7,
			},
		},
		HistorySize: cfg.History.Size,
		Location:    sensor.Zone(cfg.TimezoneOffset),
		Inbox:       in,
		Classifier:  classifier,
		Publisher:   publisher,
		Recorder:    recorder,
		ConnectErr:  connectErr,
		Metrics:     m,
		Logger:      log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiDone := make(chan struct{})
	if cfg.HTTP.Addr != "" {
		api := httpapi.New(engine, m.Registry, log).WithBroker(client)
		access := slog.NewLogLogger(log.Handler(), slog.LevelDebug).Writer()
		go func() {
			defer close(apiDone)
			if err := api.ListenAndServe(ctx, cfg.HTTP.Addr, access); err != nil {
				log.Error("http api stopped", "error", err)
			}
		}()
	} else {
		close(apiDone)
	}

	if headless {
		err := engine.Run(ctx, cfg.RefreshInterval, func(s pipeline.Snapshot) {
			log.Debug("cycle", "last_update", s.LastUpdate(), "history", len(s.History), "processed", s.Counters.Processed)
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		<-apiDone
		log.Info("shutting down")
		return err
	}

	dash := monitor.New(monitor.Options{
		Engine:    engine,
		Interval:  cfg.RefreshInterval,
		DataDir:   cfg.DataDir,
		RecordDir: recordDir,
		Broker:    cfg.MQTT.BrokerURL(),
	})
	p := tea.NewProgram(dash, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	stop()
	<-apiDone
	log.Info("shutting down")
	return err
}
