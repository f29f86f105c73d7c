package elevation

import (
	"context"
	"fmt"

	"github.com/border-inspection/tourgen/geodesy"
	"github.com/border-inspection/tourgen/metrics"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Fallback substitutes invalid elevations with the last valid one seen. A
// Fallback belongs to a single run over one boundary.
type Fallback struct {
	provider Provider
	logger   logrus.FieldLogger

	last     float64
	valid    bool
	warnings []string
}

func NewFallback(provider Provider, logger logrus.FieldLogger) *Fallback {
	return &Fallback{provider: provider, logger: logger}
}

// At returns the elevation at p. Non-positive values and provider errors
// are replaced by the last valid value and recorded as warnings; before any
// valid value was seen they fail with NoElevationDataErr. Cancellation is
// returned as is.
func (f *Fallback) At(ctx context.Context, p geodesy.Point) (float64, error) {
	v, err := f.provider.Elevation(ctx, p.Lon, p.Lat)
	if err != nil && ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err == nil && v > 0 {
		f.last = v
		f.valid = true
		return v, nil
	}

	var reason string
	if err != nil {
		reason = err.Error()
	} else {
		reason = fmt.Sprintf("elevation is %g", v)
	}
	if !f.valid {
		return 0, errors.Wrapf(NoElevationDataErr, "at %s (%s)", p, reason)
	}

	warning := fmt.Sprintf("elevation at %s: %s, using %g", p, reason, f.last)
	f.warnings = append(f.warnings, warning)
	metrics.FallbackSubstitutions.Inc()
	f.logger.WithFields(logrus.Fields{"point": p.String(), "substitute": f.last}).Warn(reason)
	return f.last, nil
}

// Last returns the last valid elevation, if any.
func (f *Fallback) Last() (float64, bool) {
	return f.last, f.valid
}

// Warnings lists every substitution made so far.
func (f *Fallback) Warnings() []string {
	return append([]string(nil), f.warnings...)
}
