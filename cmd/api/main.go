package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/luxnews2mqtt/internal/adapter/actor"
	"github.com/berfenger/luxnews2mqtt/internal/adapter/cloud"
	"github.com/berfenger/luxnews2mqtt/internal/config"
	"github.com/berfenger/luxnews2mqtt/internal/core/actor"
	"github.com/berfenger/luxnews2mqtt/internal/server"
	"github.com/berfenger/luxnews2mqtt/internal/util/actorutil"
	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init Transport actor provider
	transportProv, err := transportActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, transportProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => LUXNEWS_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("LUXNEWS_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("luxnews")
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

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.MonitorConfig.EnergyPollIntervalTicks < 1 {
		return nil, errors.New("config param monitor.energy_poll_interval_ticks should be >= 1")
	}
	switch lxp_modbus.TransportType(cfg.Transport.Type) {
	case lxp_modbus.TransportModbusTCP, lxp_modbus.TransportModbusSerial, lxp_modbus.TransportWifiDongle, lxp_modbus.TransportHTTP:
	default:
		return nil, fmt.Errorf("config param transport.type %q is not supported", cfg.Transport.Type)
	}
	if lxp_modbus.TransportType(cfg.Transport.Type) == lxp_modbus.TransportWifiDongle && cfg.Transport.DongleSerial == "" {
		return nil, errors.New("config param transport.dongle_serial is required for wifi_dongle transport")
	}
	if cfg.Cloud.Enable || lxp_modbus.TransportType(cfg.Transport.Type) == lxp_modbus.TransportHTTP {
		if cfg.Cloud.Username == "" || cfg.Cloud.Password == "" {
			return nil, errors.New("config params cloud.username and cloud.password are required when the cloud channel is enabled")
		}
		if cfg.Transport.InverterSerial == "" {
			return nil, errors.New("config param transport.inverter_serial is required when the cloud channel is enabled")
		}
	}

	return &cfg, nil
}

// transportActorProvider builds the register transport the actor tree will
// own: local only, cloud only (transport.type = http), or hybrid with
// time-based local recovery when both channels are configured.
func transportActorProvider(cfg *config.Config, logger *zap.Logger) (actor.TransportActorProvider, error) {

	var transport lxp_modbus.RegisterTransport

	transportType := lxp_modbus.TransportType(cfg.Transport.Type)

	var local lxp_modbus.RegisterTransport
	switch transportType {
	case lxp_modbus.TransportWifiDongle:
		local = lxp_modbus.CreateDongleTransport(cfg.Transport.ToTransportConfig(), logger)
	case lxp_modbus.TransportModbusTCP, lxp_modbus.TransportModbusSerial:
		var err error
		local, err = lxp_modbus.CreateModbusTransport(cfg.Transport.ToTransportConfig(), logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Cloud.Enable || transportType == lxp_modbus.TransportHTTP {
		service := cloud.NewClient(cfg.Cloud.BaseURL, cfg.Cloud.Username, cfg.Cloud.Password, logger)
		cloudTransport := lxp_modbus.CreateCloudTransport(service, cfg.Transport.InverterSerial, logger)
		if local != nil {
			retry := time.Duration(cfg.Cloud.LocalRetryIntervalSeconds) * time.Second
			transport = lxp_modbus.CreateHybridTransport(local, cloudTransport, retry, logger)
		} else {
			transport = cloudTransport
		}
	} else {
		transport = local
	}

	return func() *adactor.TransportActor {
		return adactor.NewTransportActor(transport, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "luxnews")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("monitor.energy_poll_interval_ticks", 6)
	viper.SetDefault("transport.type", "modbus_tcp")
	viper.SetDefault("transport.port", 502)
	viper.SetDefault("transport.unit_id", 1)
	viper.SetDefault("transport.timeout_millis", 5000)
	viper.SetDefault("cloud.enable", false)
	viper.SetDefault("cloud.base_url", "https://monitor.eg4electronics.com")
	viper.SetDefault("cloud.local_retry_interval_seconds", 60)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Cloud.Username = "*redacted*"
	cfg.Cloud.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
