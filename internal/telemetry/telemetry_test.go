package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataCopyOnWrite(t *testing.T) {
	base := New().WithProperty("languageId", "go")
	derived := base.WithExperiment("suffixPercent", "20").WithMeasurement("promptTokens", 12)

	assert.Empty(t, base.Experiment)
	assert.Empty(t, base.Measurements)
	v, ok := derived.ExperimentValue("suffixPercent")
	assert.True(t, ok)
	assert.Equal(t, "20", v)
	assert.Equal(t, "go", derived.Properties["languageId"])

	var zero Data
	assert.Equal(t, "x", zero.WithProperty("k", "x").Properties["k"])
}

func TestMultiSink(t *testing.T) {
	var a, b []string
	s := Multi(
		SinkFunc(func(_ context.Context, ev Event) { a = append(a, ev.Name) }),
		SinkFunc(func(_ context.Context, ev Event) { b = append(b, ev.Name) }),
		Discard,
	)
	s.Report(context.Background(), Event{Name: "prompt"})
	assert.Equal(t, []string{"prompt"}, a)
	assert.Equal(t, []string{"prompt"}, b)
}
