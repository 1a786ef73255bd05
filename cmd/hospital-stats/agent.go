package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/connectivity"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Keep syncing in the background until interrupted",
	Long: `Run the connectivity monitor: sync on startup, on every interval while online, and as soon as the record service becomes reachable again.

Network managers can hint at connectivity changes by signalling the agent:
SIGUSR1 reports the network is back (confirmed with a probe, then a sync),
SIGUSR2 reports it is gone. Signals are not available on Windows.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	app, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.monitor == nil {
		return errNoRemote
	}

	app.monitor.OnChange(func(online bool) {
		slog.Info("record service reachability changed", "online", online)
	})

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "connectivity", app.monitor.Run)

	if hints := connectivitySignals(); len(hints) > 0 {
		sigs := make(chan os.Signal, 1)
		for sig := range hints {
			signal.Notify(sigs, sig)
		}
		defer signal.Stop(sigs)
		startWorker(ctx, &wg, "connectivity-hints", func(ctx context.Context) {
			relayConnectivity(ctx, app.monitor, sigs, hints)
		})
	}

	<-ctx.Done()
	slog.Info("shutdown initiated")
	wg.Wait()
	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}

// relayConnectivity passes connectivity hints arriving on sigs to the
// monitor until ctx is cancelled. hints maps each signal to the state it
// announces; other signals are ignored.
func relayConnectivity(ctx context.Context, m *connectivity.Monitor, sigs <-chan os.Signal, hints map[os.Signal]bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			online, ok := hints[sig]
			if !ok {
				continue
			}
			slog.Info("connectivity hint received", "signal", sig.String(), "online", online)
			m.HandleSignal(ctx, online)
		}
	}
}
