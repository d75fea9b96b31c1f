// Package batch fans the Scheduling Engine out across many contacts
// with bounded concurrency and gathers the results into one
// deterministic sequence, per spec §4.4.
package batch

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/bluebrook/enroll-scheduler/internal/calendar"
	"github.com/bluebrook/enroll-scheduler/internal/contact"
	"github.com/bluebrook/enroll-scheduler/internal/scheduling"
)

// DefaultConcurrency is the bounded worker count W used when the caller
// does not override it.
const DefaultConcurrency = 16

// Scheduler is the subset of scheduling.Engine the processor needs;
// named so tests can substitute a fake without pulling in rule config.
type Scheduler interface {
	Schedule(c contact.Contact, start, end calendar.Date) (scheduled, skipped []scheduling.Intent)
}

// Result is the per-contact outcome of a scheduling run, shaped for
// JSON serialization per spec §6's scheduling output.
type Result struct {
	ContactID string
	Scheduled []scheduling.Intent
	Skipped   []scheduling.Intent
}

// Processor runs the Scheduling Engine across a set of contacts with
// bounded concurrency.
type Processor struct {
	engine      Scheduler
	concurrency int
}

// New builds a Processor with the given concurrency; a non-positive
// value falls back to DefaultConcurrency.
func New(engine Scheduler, concurrency int) *Processor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Processor{engine: engine, concurrency: concurrency}
}

// Run schedules every contact in contacts over [start, end]. Contacts
// are processed concurrently; cancelling ctx cancels outstanding
// per-contact tasks and discards partial results. The returned slice is
// sorted by contact ID, with each contact's own Scheduled/Skipped lists
// already in the order scheduling.Engine.Schedule produced.
func (p *Processor) Run(ctx context.Context, contacts []contact.Contact, start, end calendar.Date) ([]Result, error) {
	results := make([]Result, len(contacts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, c := range contacts {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scheduled, skipped := p.engine.Schedule(c, start, end)
			results[i] = Result{ContactID: c.ID, Scheduled: scheduled, Skipped: skipped}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].ContactID < results[j].ContactID })
	return results, nil
}
