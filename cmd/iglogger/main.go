package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/berfenger/iglogger/internal/adapter/csvlog"
	"github.com/berfenger/iglogger/internal/adapter/fanout"
	"github.com/berfenger/iglogger/internal/adapter/influx"
	"github.com/berfenger/iglogger/internal/adapter/mqttpub"
	"github.com/berfenger/iglogger/internal/adapter/report"
	"github.com/berfenger/iglogger/internal/config"
	"github.com/berfenger/iglogger/internal/core/poller"
	"github.com/berfenger/iglogger/internal/server"
	"github.com/berfenger/iglogger/internal/status"
	"github.com/berfenger/iglogger/pkg/fronius_ig"

	"github.com/carlmjohnson/versioninfo"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.DateTime,
	})))

	pflag.StringP("port", "f", "/dev/ttyS0", "serial device the interface card is connected to")
	pflag.StringP("dir", "d", ".", "output root directory")
	pflag.Bool("simulate", false, "poll a simulated inverter instead of the serial device")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(versioninfo.Short())
		return 0
	}

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		pflag.Usage()
		return 2
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// serial port
	var port fronius_ig.Port
	if cfg.Simulate {
		logger.Warn("polling a simulated inverter")
		port = fronius_ig.NewSimulatedInverter()
	} else {
		serialPort, err := fronius_ig.OpenSerialPort(cfg.SerialPort)
		if err != nil {
			logger.Error("could not open serial port", zap.String("port", cfg.SerialPort), zap.Error(err))
			return 1
		}
		port = serialPort
	}
	transport := fronius_ig.NewTransport(port, logger.With(zap.String("component", "transport")))
	defer transport.Close()
	session := fronius_ig.NewSession(transport, logger.With(zap.String("component", "session")))

	// outputs
	sink := buildSinks(cfg, logger)
	defer sink.Close()

	store := status.NewStore(3 * cfg.PollInterval())

	engine, err := poller.NewEngine(session, sink, cfg.PollInterval(), logger, poller.WithObserver(store))
	if err != nil {
		logger.Error("could not create polling engine", zap.Error(err))
		return 1
	}

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var apiServer *http.Server
	if cfg.HTTP.Port > 0 {
		apiServer = server.NewServer(*cfg, store)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
	}

	engineErr := engine.Run(ctx)
	stop()

	if apiServer != nil {
		gracefulShutdown(apiServer, logger)
	}

	if engineErr != nil {
		logger.Error("inverter communication failed", zap.Error(engineErr))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

func gracefulShutdown(apiServer *http.Server, logger *zap.Logger) {
	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
}

func buildSinks(cfg *config.Config, logger *zap.Logger) *fanout.Sink {
	sink := fanout.NewSink(logger)
	if cfg.CSVEnable {
		sink.Add("csv", csvlog.NewWriter(cfg.Dir, logger))
	}
	if cfg.HTMLEnable {
		sink.Add("html", report.NewPage(cfg.Dir, logger))
	}
	if cfg.MQTT.Enable {
		publisher := mqttpub.NewPublisher(cfg, logger)
		if err := publisher.Start(); err != nil {
			logger.Warn("mqtt not available, will retry in background", zap.Error(err))
		}
		sink.Add("mqtt", publisher)
	}
	if cfg.Influx.Enable {
		sink.Add("influx", influx.NewWriter(cfg.Influx, logger))
	}
	if sink.Len() == 0 {
		logger.Warn("all outputs disabled, samples are only logged")
	}
	return sink
}

func initConfig() (*config.Config, error) {

	setConfigDefaults()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	viper.SetEnvPrefix("iglogger")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = config.ParseLogLevel(viper.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("poll_interval_millis", poller.DefaultInterval.Milliseconds())
	viper.SetDefault("csv_enable", true)
	viper.SetDefault("html_enable", true)
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.http_log", false)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "iglogger")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("influx.enable", false)
	viper.SetDefault("influx.measurement", influx.DefaultMeasurement)
	viper.SetDefault("influx.timeout_millis", 5000)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Influx.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
