// Package backend defines the completion/edit suggestion service consumed by
// the inline-completion controller. The service itself is an external
// collaborator reached over the network.
package backend

import (
	"context"

	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/internal/diff"
	"go.lsp.dev/protocol"
)

// FileContext is the document content surrounding the trigger position.
type FileContext struct {
	URI              protocol.DocumentURI
	Filename         string
	Language         protocol.LanguageIdentifier
	LeftFileContent  string
	RightFileContent string
}

// Request asks the backend for suggestions at one position.
type Request struct {
	FileContext         FileContext
	Position            protocol.Position
	TriggerType         entity.TriggerType
	SupplementalContext []diff.ContextItem
	MaxResults          int
	NextToken           string
}

// Response carries one page of suggestions.
type Response struct {
	Suggestions     []entity.Suggestion
	SessionID       string
	ResponseContext map[string]string
	NextToken       string
}

// Service generates completion and edit suggestions.
type Service interface {
	GenerateSuggestions(ctx context.Context, req Request) (*Response, error)
}
