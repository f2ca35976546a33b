package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-plant-storefront/monitor"
)

func newMonitorCmd(a *app) *cobra.Command {
	var (
		duration time.Duration
		report   string
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample runtime and network metrics and print insights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMonitor(cmd.Context(), duration, report)
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&duration, "duration", 10*time.Second, "How long to sample (0 runs until interrupted)")
	flags.StringVar(&a.cfg.Monitor.ProbeURL, "probe-url", a.cfg.Monitor.ProbeURL, "URL timed with HEAD requests for network latency")
	flags.StringVar(&report, "report", "", "Write the JSON diagnostic report to this file (- for stdout)")
	return cmd
}

func (a *app) runMonitor(parent context.Context, duration time.Duration, reportPath string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	source := &monitor.RuntimeSource{}
	if a.cfg.Monitor.ProbeURL != "" {
		source.Probe = monitor.HTTPProbe(&http.Client{Timeout: a.cfg.Timeout}, a.cfg.Monitor.ProbeURL)
	}
	metrics := monitor.NewMetrics()
	mon := monitor.New(source, a.monitorConfig(), monitor.WithMetrics(metrics), monitor.WithLogger(a.logger))

	shutdownMetrics := a.serveMetrics(metricsHandler(metrics.Registry))
	defer shutdownMetrics()

	a.logger.Info("monitoring",
		slog.String("session", mon.SessionID()),
		slog.Duration("interval", a.cfg.Monitor.Interval),
		slog.Duration("duration", duration),
	)
	mon.Start(ctx)
	<-ctx.Done()
	mon.Stop()

	points := mon.DataPoints()
	fmt.Fprintf(a.out, "Collected %d samples\n", len(points))
	if latest, ok := mon.Latest(); ok {
		if latest.Memory != nil {
			fmt.Fprintf(a.out, "  Memory:   %.1f%% (%d bytes)\n", latest.Memory.UsagePercent(), latest.Memory.UsedBytes)
		}
		if latest.Network != nil {
			fmt.Fprintf(a.out, "  Network:  %.0fms (%s)\n", latest.Network.RTTMillis, latest.Network.EffectiveType)
		}
	}
	insights := mon.Insights()
	if len(insights) == 0 {
		fmt.Fprintln(a.out, "No performance issues detected")
	}
	for _, in := range insights {
		fmt.Fprintf(a.out, "  [%s] %s\n", in.Severity, in.Message)
	}

	return a.writeMonitorReport(mon, reportPath)
}

func (a *app) writeMonitorReport(mon *monitor.Monitor, path string) error {
	switch path {
	case "":
		return nil
	case "-":
		return mon.WriteReport(a.out)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := mon.WriteReport(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
