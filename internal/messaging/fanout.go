package messaging

import (
	"context"
	"errors"

	"github.com/tokenforge/presale-engine/internal/domain"
)

type fanout struct {
	publishers []Publisher
}

// NewFanout combines multiple publishers into one. Every settlement event is
// delivered to all of them; a failing publisher does not stop the others.
func NewFanout(publishers ...Publisher) Publisher {
	return &fanout{publishers: publishers}
}

func (f *fanout) PublishSettlement(ctx context.Context, event *domain.SettlementEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishSettlement(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) Close() {
	for _, p := range f.publishers {
		p.Close()
	}
}
