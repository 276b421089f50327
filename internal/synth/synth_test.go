package synth

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soiltales/soiltales-cli/internal/model"
)

func seeded(t *testing.T) *Synthesizer {
	t.Helper()
	return New(
		WithRand(rand.New(rand.NewPCG(42, 42))),
		WithDelays(0, 0),
	)
}

func TestSynthesizeAnalysisShape(t *testing.T) {
	s := seeded(t)

	rec, err := s.SynthesizeAnalysis(context.Background(), "uploads/soil.jpg", nil)
	require.NoError(t, err)

	assert.True(t, rec.IsSynthetic)
	assert.Equal(t, "uploads/soil.jpg", rec.ImageRef)
	assert.NotEmpty(t, rec.Story)
	assert.Nil(t, rec.Weather, "weather must be absent without a location")
	assert.Nil(t, rec.Location)
	assert.Empty(t, rec.ID, "ids are assigned by the store, not the synthesizer")
}

func TestMetricsWithinDocumentedRanges(t *testing.T) {
	// Randomized by design: assert ranges and shape, never exact values.
	s := seeded(t)

	for i := 0; i < 100; i++ {
		rec, err := s.SynthesizeAnalysis(context.Background(), "img", nil)
		require.NoError(t, err)

		require.Len(t, rec.SoilMetrics, len(MetricRanges))
		for key, r := range MetricRanges {
			v, ok := rec.SoilMetrics[key]
			require.True(t, ok, "metric %s missing", key)
			assert.GreaterOrEqual(t, v, r.Min, "metric %s below range", key)
			assert.LessOrEqual(t, v, r.Max, "metric %s above range", key)
		}
	}
}

func TestWeatherOnlyWithLocation(t *testing.T) {
	s := seeded(t)
	loc := &model.Location{Lat: 41.8781, Lon: -87.6298}

	rec, err := s.SynthesizeAnalysis(context.Background(), "img", loc)
	require.NoError(t, err)

	require.NotNil(t, rec.Weather)
	assert.NotEmpty(t, rec.Weather.Description)
	assert.GreaterOrEqual(t, rec.Weather.TempC, 10.0)
	assert.LessOrEqual(t, rec.Weather.TempC, 35.0)
	assert.GreaterOrEqual(t, rec.Weather.Humidity, 30.0)
	assert.LessOrEqual(t, rec.Weather.Humidity, 90.0)
}

func TestStoryMentionsLocation(t *testing.T) {
	s := seeded(t)
	loc := &model.Location{Lat: 41.8781, Lon: -87.6298}

	rec, err := s.SynthesizeAnalysis(context.Background(), "img", loc)
	require.NoError(t, err)
	assert.Contains(t, rec.Story, loc.String())

	rec, err = s.SynthesizeAnalysis(context.Background(), "img", nil)
	require.NoError(t, err)
	assert.NotContains(t, rec.Story, "Conditions near")
}

func TestStoriesDrawFromTemplates(t *testing.T) {
	s := seeded(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec, err := s.SynthesizeAnalysis(context.Background(), "img", nil)
		require.NoError(t, err)
		seen[rec.Story[:20]] = true
	}
	// With 50 draws over 4 templates, more than one opening should occur.
	assert.Greater(t, len(seen), 1)
}

func TestSynthesizeVideoPlaceholder(t *testing.T) {
	s := seeded(t)

	result, err := s.SynthesizeVideo(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.True(t, result.IsSynthetic)
	assert.Equal(t, PlaceholderVideoRef, result.VideoRef)
	assert.Equal(t, PlaceholderVideoURL, result.VideoURL)
}

func TestSimulatedDelayHonorsCancellation(t *testing.T) {
	s := New(
		WithRand(rand.New(rand.NewPCG(1, 1))),
		WithDelays(10*time.Second, 10*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.SynthesizeAnalysis(ctx, "img", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimulatedDelayElapses(t *testing.T) {
	s := New(
		WithRand(rand.New(rand.NewPCG(1, 1))),
		WithDelays(30*time.Millisecond, 0),
	)

	start := time.Now()
	_, err := s.SynthesizeAnalysis(context.Background(), "img", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSeededRunsAreReproducible(t *testing.T) {
	a := New(WithRand(rand.New(rand.NewPCG(7, 7))), WithDelays(0, 0))
	b := New(WithRand(rand.New(rand.NewPCG(7, 7))), WithDelays(0, 0))

	recA, err := a.SynthesizeAnalysis(context.Background(), "img", nil)
	require.NoError(t, err)
	recB, err := b.SynthesizeAnalysis(context.Background(), "img", nil)
	require.NoError(t, err)

	assert.Equal(t, recA.SoilMetrics, recB.SoilMetrics)
	assert.Equal(t, recA.Story, recB.Story)
}
