package actions

import (
	"context"

	"github.com/jogardn/orderdesk/pkg/models"
)

// Invalidator is told which cached reads a successful mutation made stale.
type Invalidator interface {
	Invalidate(ctx context.Context, inv models.Invalidation)
}

type InvalidatorFunc func(ctx context.Context, inv models.Invalidation)

func (f InvalidatorFunc) Invalidate(ctx context.Context, inv models.Invalidation) {
	f(ctx, inv)
}

// Fanout delivers an invalidation to each member in order. Nil members are
// skipped.
type Fanout []Invalidator

func (f Fanout) Invalidate(ctx context.Context, inv models.Invalidation) {
	for _, i := range f {
		if i != nil {
			i.Invalidate(ctx, inv)
		}
	}
}
