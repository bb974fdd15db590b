// Command fan-controller drives PWM fans, measures their speed from the
// tachometer outputs and publishes it over HTTP and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"
	"time"

	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"
	showconfig "github.com/sweeney/fan-controller/cmd/fan-controller/show_config"
	"github.com/sweeney/fan-controller/internal/command"
	"github.com/sweeney/fan-controller/internal/config"
	"github.com/sweeney/fan-controller/internal/gpio"
	"github.com/sweeney/fan-controller/internal/mqtt"
	"github.com/sweeney/fan-controller/internal/status"
	"github.com/sweeney/fan-controller/internal/web"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath string
	dummy bool
)

func main() {
	cmd := &cobra.Command{
		Use:     "fan-controller",
		Short:   "PWM fan driver with tachometer feedback",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		RunE:    daemon,
	}
	cmd.PersistentFlags().StringVarP(&cpath, "config", "c", config.DefaultPath, "Configfile path (built-in defaults when missing)")
	cmd.PersistentFlags().BoolVarP(&dummy, "dummy", "", false, "Simulate the fans instead of driving hardware")
	cmd.AddCommand(sampleCommand())
	cmd.AddCommand(showconfig.Command(func() (config.Config, error) { return loadConfig(cpath) }))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for fan-controller",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads path, falling back to the reference board when the
// default file does not exist.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultPath {
		cfg = config.Default()
		err = cfg.Validate()
	}
	return cfg, err
}

func newLogger(debug bool) logger.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	h := logger.NewSlogTextHandler(os.Stdout, &logger.SlogTextOption{
		Level:            level,
		ForceColors:      true,
		ForceFormatting:  true,
		PrefixRE:         regexp.MustCompile(`^(\[.*?\])\s`),
		DisableTimestamp: true, // Provided by journalctl
	})
	return logger.WrapSlogHandler(h)
}

func daemon(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cpath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Debug)
	ctx := logger.WithLogger(context.Background(), log)

	log.Infof("fan-controller version %s", version)

	r, err := openRig(cfg, dummy, gpio.Watch, log)
	if err != nil {
		return err
	}
	defer r.Close()
	if dummy {
		log.Info("[dummy] simulated fans, no hardware is driven")
	}

	queue := command.NewQueue(command.DefaultSize)
	defer queue.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	ws, err := cfg.WSBrokerURL()
	if err != nil {
		log.Warnf("live status page disabled: %v", err)
	}
	tracker := status.NewTracker(time.Now(), trackerConfig(cfg, r.driver, ws))
	tracker.Update(r.ctrl.Snapshot())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled() {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Prefix:     cfg.MQTT.Prefix,
			BufferSize: cfg.MQTT.Buffer,
			Log:        log,
			OnCommand:  mqttCommands(ctx, queue),
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
		tracker.SetMQTTConnected(p.IsConnected())
	}

	// Start HTTP status server
	if cfg.HTTP.Listen != "" {
		srv := web.New(cfg.HTTP.Listen, tracker, queue, log)
		srv.SetMQTTScript(cfg.HTTP.MQTTScript)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("Could not serve HTTP")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTP.Listen)
	}

	l := &loop{
		ctrl:       r.ctrl,
		clock:      r.clock,
		queue:      queue,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		heartbeat:  cfg.MQTT.Heartbeat.Duration,
		now:        time.Now,
		log:        log,
	}
	l.startup()

	log.Infof("started: loop=%v channels=%v pwm=%s tach=%s", cfg.LoopPeriod.Duration, r.ctrl.IDs(), r.driver, cfg.Tach.Source)

	ticker := time.NewTicker(cfg.LoopPeriod.Duration)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	l.run(ticker.C, sigCh)

	log.Info("Gracefully shutdown")
	return nil
}

// mqttCommands submits <prefix>/<id>/set messages to the main loop. The
// paho callback must not block for long, so each request waits on its own
// goroutine.
func mqttCommands(ctx context.Context, queue *command.Queue) mqtt.CommandHandler {
	log := logger.LogWith(ctx)

	return func(channel string, percent int) {
		go func() {
			ctx, cancel := context.WithTimeout(ctx, web.CommandTimeout)
			defer cancel()

			res, err := queue.Submit(ctx, channel, percent)
			if err != nil {
				log.WithError(err).Errorf("Could not apply mqtt speed %d%% to %s", percent, channel)
				return
			}
			log.Infof("mqtt: %s speed %d%% (requested %d%%)", res.Channel, res.Applied, res.Requested)
		}()
	}
}

func trackerConfig(cfg config.Config, driver, wsBroker string) status.Config {
	channels := make([]status.ChannelConfig, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, status.ChannelConfig{
			ID:                  ch.ID,
			PulsesPerRevolution: ch.PulsesPerRevolution,
			Debounce:            ch.Debounce.Duration,
			Window:              ch.Window.Duration,
		})
	}

	return status.Config{
		LoopMs:            cfg.LoopPeriod.Milliseconds(),
		HeartbeatMs:       cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:            cfg.MQTT.Broker,
		MQTTPrefix:        cfg.MQTT.Prefix,
		HTTPPort:          cfg.HTTP.Listen,
		WSBroker:          wsBroker,
		PWMDriver:         driver,
		PWMFrequencyHz:    cfg.PWM.FrequencyHz,
		PWMResolutionBits: cfg.PWM.ResolutionBits,
		TachSource:        cfg.Tach.Source,
		Channels:          channels,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
