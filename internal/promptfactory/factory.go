package promptfactory

import (
	"ghostprompt/internal/telemetry"
)

// New composes the sequential, timeout and assembly layers. The timeout
// comes from deps.Config.
func New(deps Deps, sink telemetry.Sink) *Pipeline {
	assembly := NewAssemblyLayer(deps)
	timeout := NewTimeoutLayer(assembly, deps.Config.GetPromptTimeout())
	return NewPipeline(timeout, sink)
}
