package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/aggregate"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/config"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/connectivity"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/kv"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/localstore"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/remote"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/syncer"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/types"
)

var errNoRemote = errors.New("no remote configured: set HSTATS_REMOTE_URL")

// clientApp is the on-device side: local store, sync and aggregation
// engines and the connectivity monitor. remote, agg and monitor are nil
// when no remote URL is configured.
type clientApp struct {
	owner   string
	kv      kv.Store
	local   *localstore.Store
	remote  *remote.Client
	agg     *aggregate.Engine
	sync    *syncer.Engine
	monitor *connectivity.Monitor
}

func openClient(ctx context.Context, c *config.Config) (*clientApp, error) {
	if err := c.ValidateClient(); err != nil {
		return nil, err
	}

	substrate, err := kv.Open(ctx, kv.Options{
		Driver:   c.Client.LocalDriver,
		Path:     c.Client.LocalPath,
		RedisURL: c.Client.RedisURL,
		Prefix:   c.Client.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open local substrate: %w", err)
	}

	app := &clientApp{
		owner: c.Client.Owner,
		kv:    substrate,
		local: localstore.New(ctx, substrate, localstore.WithPersistErrorHandler(func(pe localstore.PersistError) {
			slog.Error("local write failed; change kept in memory only",
				"component", "localstore",
				"error", pe.Error(),
			)
		})),
	}

	var (
		rs   remote.RecordStore
		opts []syncer.Option
	)
	if c.Client.RemoteURL != "" {
		app.remote = remote.NewClient(remote.Config{
			BaseURL: c.Client.RemoteURL,
			APIKey:  c.Client.APIKey,
			Owner:   c.Client.Owner,
			Timeout: time.Duration(c.Client.RequestTimeout),
			Retries: c.Client.RequestRetries,
		})
		rs = app.remote
		app.agg = aggregate.New(app.remote, app.remote,
			aggregate.WithTriggerTimeout(time.Duration(c.Client.AggregationTimeout)),
			aggregate.WithResultHandler(func(owner string, res types.AggregationResult) {
				slog.Info("background aggregation finished",
					"component", "aggregate",
					"owner", owner,
					"success", res.Success,
					"months", res.AggregatedMonths,
				)
			}),
		)
		opts = append(opts,
			syncer.WithOnline(func() bool { return app.monitor.Online() }),
			syncer.WithAggregation(app.agg),
		)
	}

	app.sync = syncer.New(app.local, rs, c.Client.Owner, opts...)

	if app.remote != nil {
		app.monitor = connectivity.New(app.remote, app.sync,
			connectivity.WithInterval(time.Duration(c.Client.SyncInterval)),
			connectivity.WithProbeTimeout(time.Duration(c.Client.ProbeTimeout)),
		)
	}
	return app, nil
}

// probe refreshes the online state. It reports false without a remote.
func (a *clientApp) probe(ctx context.Context) bool {
	if a.monitor == nil {
		return false
	}
	return a.monitor.Probe(ctx)
}

// Close waits for background aggregation and closes the substrate.
func (a *clientApp) Close() error {
	if a.agg != nil {
		a.agg.Wait()
	}
	return a.kv.Close()
}
