package controller

import (
	inlinecompletion "github.com/uber/assist-lsp/src/alsp/controller/inline-completion"
	mcpmanager "github.com/uber/assist-lsp/src/alsp/controller/mcp-manager"
	"go.uber.org/fx"
)

// Module provides all controllers.
var Module = fx.Options(
	mcpmanager.Module,
	inlinecompletion.Module,
)
