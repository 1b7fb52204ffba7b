package panel

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"panel-journey-audit/internal/quarter"
)

// minChunk keeps tiny inputs on a single goroutine.
const minChunk = 2048

// Query asks whether an entity was a member during a quarter.
type Query struct {
	EntityID string
	Period   quarter.Period
}

// Resolver answers membership queries against an Index. AsOf stands in for
// the exclusion date of open intervals; it is the only time input, so a
// resolver with a fixed AsOf is deterministic. Quarters that start after
// AsOf never match an open interval.
type Resolver struct {
	index *Index
	asOf  time.Time
}

// NewResolver returns a resolver that closes open intervals at asOf.
func NewResolver(index *Index, asOf time.Time) (*Resolver, error) {
	if index == nil {
		return nil, errors.New("panel: nil index")
	}
	if asOf.IsZero() {
		return nil, errors.New("panel: as-of date is required")
	}
	return &Resolver{index: index, asOf: quarter.DateOnly(asOf)}, nil
}

// AsOf returns the date used for open intervals.
func (r *Resolver) AsOf() time.Time {
	return r.asOf
}

// IsMember reports whether any interval of the entity overlaps the quarter:
// inclusion <= quarter end and effective exclusion >= quarter start.
// Entities without intervals are never members.
func (r *Resolver) IsMember(entityID string, period quarter.Period) bool {
	start, end := period.Start(), period.End()
	for _, interval := range r.index.Intervals(entityID) {
		if interval.Inclusion.After(end) {
			// sorted by inclusion, nothing later can overlap
			return false
		}
		exclusion := r.asOf
		if interval.Exclusion != nil {
			exclusion = *interval.Exclusion
		}
		if !exclusion.Before(start) {
			return true
		}
	}
	return false
}

// ResolveAll answers queries in parallel, splitting them into contiguous
// partitions handled by at most workers goroutines. Result i answers
// query i.
func (r *Resolver) ResolveAll(ctx context.Context, queries []Query, workers int) ([]bool, error) {
	results := make([]bool, len(queries))
	if len(queries) == 0 {
		return results, nil
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (len(queries) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(queries); lo += chunk {
		lo := lo
		hi := min(lo+chunk, len(queries))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				results[i] = r.IsMember(queries[i].EntityID, queries[i].Period)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
