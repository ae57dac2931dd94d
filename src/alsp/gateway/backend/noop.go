package backend

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(NewUnconfigured)

// UnconfiguredParams defines the dependencies of the unconfigured service.
type UnconfiguredParams struct {
	fx.In

	Logger *zap.SugaredLogger
}

type unconfigured struct {
	logger *zap.SugaredLogger
}

// NewUnconfigured returns a Service that produces no suggestions. Deployments
// replace it with a real client via fx.Decorate.
func NewUnconfigured(p UnconfiguredParams) Service {
	return &unconfigured{logger: p.Logger.With("plugin", "backend")}
}

func (s *unconfigured) GenerateSuggestions(ctx context.Context, req Request) (*Response, error) {
	s.logger.Debugw("no suggestion backend configured", "uri", req.FileContext.URI)
	return &Response{}, nil
}
