// Package app wires the assist-lsp application together.
package app

import (
	"context"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/controller"
	mcpmanager "github.com/uber/assist-lsp/src/alsp/controller/mcp-manager"
	"github.com/uber/assist-lsp/src/alsp/gateway"
	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"github.com/uber/assist-lsp/src/alsp/internal/configstore"
	"github.com/uber/assist-lsp/src/alsp/internal/core"
	"github.com/uber/assist-lsp/src/alsp/internal/fs"
	"github.com/uber/assist-lsp/src/alsp/internal/toolserver"
	"github.com/uber/assist-lsp/src/alsp/internal/tracker"
	"go.uber.org/fx"
)

// Module defines the assist-lsp application module.
var Module = fx.Options(
	gateway.Module,    // outbounds
	controller.Module, // feature controllers
	fs.Module,
	clock.Module,
	configstore.Module,
	toolserver.Module,
	tracker.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "assist-lsp",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Invoke(func(lc fx.Lifecycle, mcp mcpmanager.Controller) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return mcp.Close()
			},
		})
	}),
)
