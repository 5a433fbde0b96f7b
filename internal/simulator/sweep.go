package simulator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"panelsim/internal/panel"
	"panelsim/internal/strategy"
)

// Job names one strategy run of a sweep.
type Job struct {
	Name    string
	Factory strategy.Factory
}

// Outcome is the result of one Job. Err is set when the run could not be
// built or stopped early; Result may still hold the committed steps.
type Outcome struct {
	Name   string
	Result *Result
	Err    error
}

// Sweep runs every job against the shared panel with the same config, at most
// workers at a time. Each run gets its own strategy instance, schedule and
// portfolio; only the read-only panel is shared. Outcomes are returned in job
// order. A failing job does not stop the others; cancelling ctx stops all of
// them at their next step boundary.
func Sweep(ctx context.Context, p *panel.Panel, jobs []Job, cfg Config, workers int, opts ...Option) []Outcome {
	if workers < 1 {
		workers = 1
	}
	log := slog.Default().With("component", "sweep")

	outcomes := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			outcomes[i] = runJob(gctx, p, job, cfg, opts)
			if outcomes[i].Err != nil {
				log.Warn("sweep run failed", "strategy", job.Name, "error", outcomes[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func runJob(ctx context.Context, p *panel.Panel, job Job, cfg Config, opts []Option) Outcome {
	out := Outcome{Name: job.Name}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	strat, err := job.Factory()
	if err != nil {
		out.Err = fmt.Errorf("building strategy %s: %w", job.Name, err)
		return out
	}
	sim, err := New(p, strat, cfg, opts...)
	if err != nil {
		out.Err = err
		return out
	}
	out.Result, out.Err = sim.Run(ctx)
	return out
}

// JobsFromRegistry builds sweep jobs for the named strategies.
func JobsFromRegistry(r *strategy.Registry, names []string) ([]Job, error) {
	jobs := make([]Job, 0, len(names))
	for _, name := range names {
		f, ok := r.Factory(name)
		if !ok {
			return nil, fmt.Errorf("%q (have %v): %w", name, r.List(), strategy.ErrUnknownStrategy)
		}
		jobs = append(jobs, Job{Name: name, Factory: f})
	}
	return jobs, nil
}
