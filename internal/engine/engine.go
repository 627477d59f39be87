// Package engine ties the startup sources, the analysis stage and the
// optimizer together behind one API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/breeze-rmm/startup-optimizer/internal/analysis"
	"github.com/breeze-rmm/startup-optimizer/internal/audit"
	"github.com/breeze-rmm/startup-optimizer/internal/collectors"
	"github.com/breeze-rmm/startup-optimizer/internal/config"
	"github.com/breeze-rmm/startup-optimizer/internal/health"
	"github.com/breeze-rmm/startup-optimizer/internal/inventory"
	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/internal/optimizer"
	"github.com/breeze-rmm/startup-optimizer/internal/privilege"
	"github.com/breeze-rmm/startup-optimizer/internal/workerpool"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

var log = logging.L("engine")

// Options wires an Engine. Zero fields get defaults: the stock config, the
// running platform's capabilities, the process privilege check and no audit
// trail.
type Options struct {
	Config       *config.Config
	Capabilities *collectors.Capabilities
	Gate         privilege.Gate
	Audit        *audit.Logger
	Now          func() time.Time
}

// Engine owns one inventory and the components that read and change it.
// All methods are safe for concurrent use.
type Engine struct {
	autoruns    *collectors.AutorunSource
	services    *collectors.ServiceSource
	events      *collectors.BootEventSource
	aggregator  *analysis.Aggregator
	recommender *analysis.Recommender
	repo        *inventory.Repository
	executor    *optimizer.Executor
	health      *health.Monitor
	workers     int
	now         func() time.Time
}

// New builds an Engine from opts.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	caps := collectors.PlatformCapabilities()
	if opts.Capabilities != nil {
		caps = *opts.Capabilities
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	prot := collectors.NewProtection(cfg.ProtectedEntries)
	timeout := cfg.SourceTimeout()
	repo := inventory.NewRepository()
	autoruns := collectors.NewAutorunSource(caps.Autoruns, timeout, prot)
	services := collectors.NewServiceSource(caps.Services, timeout, prot)

	return &Engine{
		autoruns: autoruns,
		services: services,
		events:   collectors.NewBootEventSource(caps.Events, timeout),
		aggregator: analysis.NewAggregator(analysis.Policy{
			ServiceWeight:    cfg.ServiceWeight,
			MaxTotalSeconds:  cfg.MaxTotalSeconds,
			BootPhaseMarkers: cfg.BootPhaseMarkers,
		}),
		recommender: analysis.NewRecommender(analysis.Thresholds{
			PriorityThreshold:     cfg.PriorityThresholdSeconds,
			DelayThreshold:        cfg.DelayThresholdSeconds,
			SuggestedDelaySeconds: cfg.SuggestedDelaySeconds,
			AutoServiceLimit:      cfg.AutoServiceLimit,
		}),
		repo:     repo,
		executor: optimizer.NewExecutor(repo, opts.Gate, autoruns, services, opts.Audit),
		health:   health.NewMonitor(),
		workers:  max(cfg.BatchWorkers, 1),
		now:      now,
	}
}

// collectInto returns an errgroup task that runs one source and stores its
// result. Cancellation is checked before the source starts and after it
// returns; a source failure is recorded, never returned.
func collectInto[T any](ctx context.Context, mon *health.Monitor, name string,
	collect func(context.Context) ([]T, *collectors.CollectionError),
	out *[]T, failure **collectors.CollectionError) func() error {
	return func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		items, cerr := collect(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if cerr != nil {
			err = cerr
		}
		mon.RecordCollection(name, len(items), time.Since(start), err)
		*out = items
		*failure = cerr
		return nil
	}
}

// Scan collects all three sources concurrently, aggregates them and makes
// the result the live inventory. A source failure yields a partial profile
// with CollectionErrors set. A cancelled scan returns ctx.Err() and leaves
// the previous inventory in place.
func (e *Engine) Scan(ctx context.Context) (*models.StartupProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scanID := uuid.NewString()
	logger := log.With(logging.KeyScanID, scanID)
	ctx = logging.NewContext(ctx, logger)
	start := time.Now()

	var (
		autoruns []models.StartupEntry
		services []models.ServiceEntry
		events   []models.BootEvent
		failures [3]*collectors.CollectionError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(collectInto(gctx, e.health, e.autoruns.Name(), e.autoruns.Collect, &autoruns, &failures[0]))
	g.Go(collectInto(gctx, e.health, e.services.Name(), e.services.Collect, &services, &failures[1]))
	g.Go(collectInto(gctx, e.health, e.events.Name(), e.events.Collect, &events, &failures[2]))
	if err := g.Wait(); err != nil {
		logger.Info("scan cancelled", logging.KeyError, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile := e.aggregator.Aggregate(autoruns, services, events)
	profile.ScanID = scanID
	profile.ScannedAt = e.now().UTC()
	for _, f := range failures {
		if f != nil {
			profile.CollectionErrors = append(profile.CollectionErrors, models.SourceError{
				Source:  f.Source,
				Message: f.Err.Error(),
			})
		}
	}
	e.repo.Replace(profile)

	logger.Info("scan complete",
		"autoruns", len(profile.Autoruns),
		"services", len(profile.Services),
		"bootEvents", len(profile.BootEvents),
		"totalSeconds", profile.TotalStartupTimeSeconds,
		"failedSources", len(profile.CollectionErrors),
		logging.KeyDurationMs, time.Since(start).Milliseconds(),
	)
	return profile, nil
}

// Recommendations evaluates p, or the latest snapshot when p is nil.
func (e *Engine) Recommendations(p *models.StartupProfile) []models.Recommendation {
	if p == nil {
		p = e.repo.Snapshot()
	}
	return e.recommender.Recommend(p)
}

// Optimize applies one action to one entry of the live inventory.
func (e *Engine) Optimize(ctx context.Context, entryID string, action models.Action, params optimizer.Params) optimizer.Result {
	return e.executor.Execute(ctx, optimizer.Request{EntryID: entryID, Action: action, Params: params})
}

// OptimizeBatch applies reqs on a bounded worker pool and returns one result
// per request, in request order. Requests not started before ctx ends fail
// with ctx.Err().
func (e *Engine) OptimizeBatch(ctx context.Context, reqs []optimizer.Request) []optimizer.Result {
	results := make([]optimizer.Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	logger := log.With(logging.KeyBatchID, uuid.NewString())
	ctx = logging.NewContext(ctx, logger)

	pool := workerpool.New(min(e.workers, len(reqs)), e.workers)
	for i, req := range reqs {
		err := pool.SubmitWait(ctx, func() {
			if err := ctx.Err(); err != nil {
				results[i] = cancelled(req, err)
				return
			}
			results[i] = e.executor.Execute(ctx, req)
		})
		if err != nil {
			results[i] = cancelled(req, err)
		}
	}
	pool.Drain(context.Background())

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logger.Info("batch optimization complete", "requests", len(reqs), "failed", failed)
	return results
}

func cancelled(req optimizer.Request, err error) optimizer.Result {
	if errors.Is(err, workerpool.ErrStopped) {
		err = fmt.Errorf("batch stopped: %w", err)
	}
	return optimizer.Result{
		EntryID: req.EntryID,
		Action:  req.Action,
		Message: err.Error(),
		Error:   err.Error(),
		Err:     err,
	}
}

// Snapshot returns a copy of the live inventory, or nil before the first scan.
func (e *Engine) Snapshot() *models.StartupProfile {
	return e.repo.Snapshot()
}

// Entry returns a copy of one live entry.
func (e *Engine) Entry(id string) (inventory.Entry, bool) {
	return e.repo.Lookup(id)
}

// SourceHealth returns the last collection outcome of every source that has
// run, sorted by source name, with the worst status among them.
func (e *Engine) SourceHealth() health.Report {
	return e.health.Summary()
}
