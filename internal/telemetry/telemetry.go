// Package telemetry carries per-request properties, measurements and
// experiment variables, and defines the sink prompt results are reported to.
package telemetry

import (
	"context"
	"maps"
)

// Data is a per-request telemetry envelope. It is treated as a value:
// With* methods return modified copies.
type Data struct {
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
	// Experiment holds experiment variable overrides for this request.
	Experiment map[string]string `json:"experiment,omitempty"`
}

// New creates an empty envelope.
func New() Data {
	return Data{
		Properties:   map[string]string{},
		Measurements: map[string]float64{},
		Experiment:   map[string]string{},
	}
}

// WithProperty returns a copy of d with key set to value.
func (d Data) WithProperty(key, value string) Data {
	out := d.clone()
	out.Properties[key] = value
	return out
}

// WithMeasurement returns a copy of d with key set to value.
func (d Data) WithMeasurement(key string, value float64) Data {
	out := d.clone()
	out.Measurements[key] = value
	return out
}

// WithExperiment returns a copy of d with the experiment variable set.
func (d Data) WithExperiment(key, value string) Data {
	out := d.clone()
	out.Experiment[key] = value
	return out
}

// ExperimentValue returns an experiment variable.
func (d Data) ExperimentValue(key string) (string, bool) {
	v, ok := d.Experiment[key]
	return v, ok
}

func (d Data) clone() Data {
	out := Data{
		Properties:   maps.Clone(d.Properties),
		Measurements: maps.Clone(d.Measurements),
		Experiment:   maps.Clone(d.Experiment),
	}
	if out.Properties == nil {
		out.Properties = map[string]string{}
	}
	if out.Measurements == nil {
		out.Measurements = map[string]float64{}
	}
	if out.Experiment == nil {
		out.Experiment = map[string]string{}
	}
	return out
}

// Event is a named telemetry record.
type Event struct {
	Name string
	Data Data
	// Payload carries a structured result, e.g. a prompt result.
	Payload any
}

// Sink receives telemetry events. Implementations must not block the caller
// for long and must be safe for concurrent use.
type Sink interface {
	Report(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Report(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Multi fans an event out to several sinks.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, ev Event) {
		for _, s := range sinks {
			s.Report(ctx, ev)
		}
	})
}

// Event names and the keys prompt results are reported with.
const (
	EventPromptResult = "ghostText.prompt"

	PropResultType = "resultType"
	PropLanguageID = "languageId"
	PropRenderer   = "rendererName"
	PropTokenizer  = "tokenizer"

	MeasurePrefixTokens  = "promptPrefixTokens"
	MeasureSuffixTokens  = "promptSuffixTokens"
	MeasureComputeTimeMs = "promptComputeTimeMs"
)
