// Package gateway aggregates the outbound collaborators.
package gateway

import (
	"github.com/uber/assist-lsp/src/alsp/gateway/backend"
	"github.com/uber/assist-lsp/src/alsp/gateway/telemetry"
	"go.uber.org/fx"
)

// Module provides all gateways.
var Module = fx.Options(
	backend.Module,
	telemetry.Module,
)
