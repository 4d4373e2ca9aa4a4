// Package promptfactory turns completion requests into prompt results. It
// serializes builds, bounds them with a deadline and maps every outcome onto
// a closed set of result variants.
package promptfactory

import (
	"encoding/json"
	"time"

	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/document"
	"ghostprompt/internal/prompt"
	"ghostprompt/internal/telemetry"
)

// Request is one completion request. It is immutable and consumed once.
type Request struct {
	CompletionID  string
	OpportunityID string
	State         State
	Telemetry     telemetry.Data
	Options       RequestOptions
}

// State locates the cursor. Document may carry an explicit snapshot;
// otherwise the document is looked up by URI.
type State struct {
	URI      string
	Document *document.TextDocument
	Position document.Position
}

func (s State) uri() string {
	if s.Document != nil {
		return s.Document.URI()
	}
	return s.URI
}

// RequestOptions are caller overrides applied on top of configuration.
type RequestOptions struct {
	SplitContext bool
}

// Result type names.
const (
	TypePrompt           = "prompt"
	TypeContextTooShort  = "contextTooShort"
	TypeContentExclusion = "copilotContentExclusion"
	TypePromptError      = "promptError"
	TypePromptCancelled  = "promptCancelled"
	TypePromptTimeout    = "promptTimeout"
)

// Result is exactly one of *PromptResponse, ContextTooShort,
// ContentExclusion, *PromptError, PromptCancelled or PromptTimeout.
type Result interface {
	Type() string
	isResult()
}

// PromptResponse is a successfully assembled prompt.
type PromptResponse struct {
	Prompt                    prompt.Prompt
	TrailingWs                string
	ComputeTime               time.Duration
	Metadata                  prompt.Metadata
	ContextProvidersTelemetry []contextproviders.ProviderTelemetry
	LanguageID                string
}

// ContextTooShort means the document is missing or too short to complete.
type ContextTooShort struct{}

// ContentExclusion means the document is blocked by exclusion policy.
type ContentExclusion struct{}

// PromptError wraps an unrecoverable assembly failure.
type PromptError struct {
	Err error
}

// PromptCancelled means the caller cancelled the request.
type PromptCancelled struct{}

// PromptTimeout means assembly missed its deadline.
type PromptTimeout struct{}

func (*PromptResponse) Type() string  { return TypePrompt }
func (ContextTooShort) Type() string  { return TypeContextTooShort }
func (ContentExclusion) Type() string { return TypeContentExclusion }
func (*PromptError) Type() string     { return TypePromptError }
func (PromptCancelled) Type() string  { return TypePromptCancelled }
func (PromptTimeout) Type() string    { return TypePromptTimeout }

func (*PromptResponse) isResult()  {}
func (ContextTooShort) isResult()  {}
func (ContentExclusion) isResult() {}
func (*PromptError) isResult()     {}
func (PromptCancelled) isResult()  {}
func (PromptTimeout) isResult()    {}

func (e *PromptError) Error() string { return "prompt error: " + e.Err.Error() }
func (e *PromptError) Unwrap() error { return e.Err }

type typeOnly struct {
	Type string `json:"type"`
}

func (r ContextTooShort) MarshalJSON() ([]byte, error)  { return json.Marshal(typeOnly{r.Type()}) }
func (r ContentExclusion) MarshalJSON() ([]byte, error) { return json.Marshal(typeOnly{r.Type()}) }
func (r PromptCancelled) MarshalJSON() ([]byte, error)  { return json.Marshal(typeOnly{r.Type()}) }
func (r PromptTimeout) MarshalJSON() ([]byte, error)    { return json.Marshal(typeOnly{r.Type()}) }

func (e *PromptError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{e.Type(), e.Err.Error()})
}

func (r *PromptResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type                      string                               `json:"type"`
		Prompt                    prompt.Prompt                        `json:"prompt"`
		TrailingWs                string                               `json:"trailingWs,omitempty"`
		ComputeTimeMs             float64                              `json:"computeTimeMs"`
		Metadata                  prompt.Metadata                      `json:"metadata"`
		ContextProvidersTelemetry []contextproviders.ProviderTelemetry `json:"contextProvidersTelemetry,omitempty"`
	}{
		Type:                      r.Type(),
		Prompt:                    r.Prompt,
		TrailingWs:                r.TrailingWs,
		ComputeTimeMs:             float64(r.ComputeTime.Microseconds()) / 1000,
		Metadata:                  r.Metadata,
		ContextProvidersTelemetry: r.ContextProvidersTelemetry,
	})
}
