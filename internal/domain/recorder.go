package domain

import (
	"context"
	"errors"
)

// FanoutRecorder sends each event to every recorder and joins their errors.
type FanoutRecorder []UsageRecorder

// Record implements UsageRecorder.
func (f FanoutRecorder) Record(ctx context.Context, ev UsageEvent) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
