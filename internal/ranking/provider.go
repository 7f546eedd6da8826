package ranking

import (
	"context"
	"log/slog"
)

// WeightSource reads the administrator-configured weight record.
type WeightSource interface {
	// LoadWeights returns the stored weights, or (nil, nil) when no record exists.
	LoadWeights(ctx context.Context) (*PartialWeights, error)
}

// WeightLoadMetrics records weight configuration read failures.
type WeightLoadMetrics interface {
	IncWeightLoadErrors()
}

// WeightProvider resolves the effective weight vector by merging the stored
// record over DefaultWeights.
type WeightProvider struct {
	source  WeightSource
	logger  *slog.Logger
	metrics WeightLoadMetrics
}

// NewWeightProvider creates a provider over source. A nil source always yields defaults.
func NewWeightProvider(source WeightSource, logger *slog.Logger) *WeightProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeightProvider{
		source: source,
		logger: logger,
	}
}

// WithMetrics attaches a metrics sink for load failures.
func (p *WeightProvider) WithMetrics(m WeightLoadMetrics) *WeightProvider {
	p.metrics = m
	return p
}

// GetWeights returns the effective weights. It never fails: a missing record
// or missing coefficients fall back to defaults, and a read error is logged
// and also answered with defaults.
func (p *WeightProvider) GetWeights(ctx context.Context) WeightVector {
	defaults := DefaultWeights()
	if p == nil || p.source == nil {
		return defaults
	}

	stored, err := p.source.LoadWeights(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to load ranking weights, using defaults",
			"error", err)
		if p.metrics != nil {
			p.metrics.IncWeightLoadErrors()
		}
		return defaults
	}
	if stored == nil {
		return defaults
	}

	if err := stored.Validate(); err != nil {
		p.logger.WarnContext(ctx, "ignoring invalid ranking weight coefficients",
			"error", err)
	}

	merged := MergeWeights(defaults, stored)
	logWeightOverrides(p.logger, defaults, merged)
	return merged
}

// StaticWeightSource serves a fixed weight record. Useful for tests and for
// pinning weights in offline tooling.
type StaticWeightSource struct {
	Weights *PartialWeights
	Err     error
}

// LoadWeights implements WeightSource.
func (s StaticWeightSource) LoadWeights(context.Context) (*PartialWeights, error) {
	return s.Weights, s.Err
}

// LayeredWeightSource reads Primary and consults Fallback only when Primary
// has no record. Errors from Primary are returned as is.
type LayeredWeightSource struct {
	Primary  WeightSource
	Fallback WeightSource
}

// LoadWeights implements WeightSource.
func (s LayeredWeightSource) LoadWeights(ctx context.Context) (*PartialWeights, error) {
	if s.Primary != nil {
		weights, err := s.Primary.LoadWeights(ctx)
		if err != nil || weights != nil {
			return weights, err
		}
	}
	if s.Fallback == nil {
		return nil, nil
	}
	return s.Fallback.LoadWeights(ctx)
}
