// Command facilityserver runs the booking server: a single-threaded UDP
// dispatcher over the booking store, history cache and monitor registry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Iyzyman/facilitybook/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "facilityserver port semantics [p_req_loss] [p_rep_loss]",
	Short:         "Run the facility booking server",
	Args:          cobra.RangeArgs(2, 4),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file (facility list, loss defaults)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on, e.g. :9090 (disabled if empty)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "facilityserver:", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := server.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	semantics, err := server.ParseSemantics(args[1])
	if err != nil {
		return err
	}
	lossArgs := make([]float64, 0, 2)
	for _, a := range args[2:] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return fmt.Errorf("invalid loss probability %q: %w", a, err)
		}
		lossArgs = append(lossArgs, v)
	}

	cfg.Port = port
	cfg.Semantics = semantics
	if err := cfg.ApplyLossArgs(lossArgs); err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var metrics *server.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = server.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		log.Info("metrics enabled", "addr", cfg.MetricsAddr)
	} else {
		metrics = server.NewNoopMetrics()
	}

	udpAddr := &net.UDPAddr{Port: cfg.Port}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind udp port %d: %w", cfg.Port, err)
	}
	defer conn.Close()

	log.Info("server listening",
		"port", cfg.Port,
		"semantics", cfg.Semantics,
		"request_loss", cfg.RequestLoss,
		"reply_loss", cfg.ReplyLoss,
		"facilities", cfg.Facilities,
	)

	dispatcher := server.NewDispatcher(cfg, conn, log, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	return dispatcher.Run(ctx)
}
