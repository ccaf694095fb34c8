package mcp

import (
	"context"

	"github.com/petal-labs/petalpeople/tool"
)

//go:generate mockgen -source=provider.go -destination=../mocks/mockmcp/provider_mock.gen.go -package mockmcp

// ToolProvider is the tool surface a Server exposes. *tool.Registry
// satisfies it.
type ToolProvider interface {
	List() []tool.Descriptor
	Invoke(ctx context.Context, name string, args map[string]any) (tool.Result, error)
}
