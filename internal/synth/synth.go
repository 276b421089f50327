// Package synth produces plausible analysis results locally when the
// backend is unreachable, so callers never have to special-case the
// offline path. Values are randomized within fixed plausible ranges;
// every result is flagged IsSynthetic.
package synth

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/soiltales/soiltales-cli/internal/model"
)

// Range bounds one synthesized metric.
type Range struct {
	Min, Max float64
}

// MetricRanges holds the plausible interval each soil metric is drawn
// from. Exported so tests assert ranges and shape, not exact values.
var MetricRanges = map[string]Range{
	model.MetricPH:            {Min: 5.5, Max: 8.0},
	model.MetricOrganicMatter: {Min: 1.0, Max: 5.0},
	model.MetricPhosphorus:    {Min: 10, Max: 50},
	model.MetricConductivity:  {Min: 0.5, Max: 2.5},
	model.MetricMoisture:      {Min: 15, Max: 35},
}

// Simulated latency defaults. The delay is a deliberate UX affordance
// (perceived processing), not an implementation artifact.
const (
	DefaultAnalyzeDelay = 2 * time.Second
	DefaultVideoDelay   = 3 * time.Second
)

// PlaceholderVideoRef is the fixed asset returned for synthetic videos.
const (
	PlaceholderVideoRef = "media/sample_story.mp4"
	PlaceholderVideoURL = "/media/sample_story.mp4"
)

var storyTemplates = []string{
	"Hello there, fellow gardener! Your soil sample shows a pH of %.1f with about %.1f%% organic matter. That is a solid foundation to build on: work in some compost this season and your beds will thank you.",
	"Great news from your garden's foundation! With phosphorus around %.0f and a pH of %.1f, this soil is ready for root vegetables. Keep the moisture steady and avoid over-tilling.",
	"Here's what I noticed in your sample: the electrical conductivity sits near %.1f, which suggests a modest salt load. A deep watering before planting will flush the top layer nicely.",
	"You're on the right track! Moisture near %.0f%% and a balanced pH of %.1f mean most leafy greens will settle in happily. Mulch well to hold that moisture through warm spells.",
}

var weatherDescriptions = []string{
	"clear sky",
	"few clouds",
	"scattered clouds",
	"light rain",
	"overcast clouds",
}

// Synthesizer generates offline analysis and video results.
type Synthesizer struct {
	rng          *rand.Rand
	analyzeDelay time.Duration
	videoDelay   time.Duration
}

// Option tunes the synthesizer.
type Option func(*Synthesizer)

// WithRand injects the randomness source so tests can pin a seed.
func WithRand(rng *rand.Rand) Option {
	return func(s *Synthesizer) {
		s.rng = rng
	}
}

// WithDelays overrides the simulated latency. Zero disables the delay
// (useful in tests); negative values keep the defaults.
func WithDelays(analyze, video time.Duration) Option {
	return func(s *Synthesizer) {
		if analyze >= 0 {
			s.analyzeDelay = analyze
		}
		if video >= 0 {
			s.videoDelay = video
		}
	}
}

// New creates a synthesizer with a time-seeded randomness source.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		analyzeDelay: DefaultAnalyzeDelay,
		videoDelay:   DefaultVideoDelay,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SynthesizeAnalysis fabricates a structurally complete analysis record
// after the simulated processing delay. It fails only on context
// cancellation.
func (s *Synthesizer) SynthesizeAnalysis(ctx context.Context, imageRef string, loc *model.Location) (model.AnalysisRecord, error) {
	if err := s.sleep(ctx, s.analyzeDelay); err != nil {
		return model.AnalysisRecord{}, err
	}

	// Draw in fixed key order so a seeded source reproduces exactly.
	metrics := make(model.SoilMetrics, len(MetricRanges))
	for _, key := range model.MetricKeys {
		r := MetricRanges[key]
		metrics[key] = r.Min + s.rng.Float64()*(r.Max-r.Min)
	}

	rec := model.AnalysisRecord{
		ImageRef:    imageRef,
		Location:    loc,
		SoilMetrics: metrics,
		Story:       s.story(metrics, loc),
		IsSynthetic: true,
	}
	if loc != nil {
		rec.Weather = s.weather()
	}

	zap.L().Debug("synthesized analysis",
		zap.String("image_ref", imageRef),
		zap.Bool("has_location", loc != nil),
	)
	return rec, nil
}

// SynthesizeVideo returns the fixed placeholder asset after the simulated
// rendering delay.
func (s *Synthesizer) SynthesizeVideo(ctx context.Context, recordID string) (model.VideoResult, error) {
	if err := s.sleep(ctx, s.videoDelay); err != nil {
		return model.VideoResult{}, err
	}

	zap.L().Debug("synthesized video", zap.String("record_id", recordID))
	return model.VideoResult{
		VideoRef:    PlaceholderVideoRef,
		VideoURL:    PlaceholderVideoURL,
		IsSynthetic: true,
	}, nil
}

func (s *Synthesizer) story(metrics model.SoilMetrics, loc *model.Location) string {
	var text string
	switch s.rng.IntN(len(storyTemplates)) {
	case 0:
		text = fmt.Sprintf(storyTemplates[0], metrics[model.MetricPH], metrics[model.MetricOrganicMatter])
	case 1:
		text = fmt.Sprintf(storyTemplates[1], metrics[model.MetricPhosphorus], metrics[model.MetricPH])
	case 2:
		text = fmt.Sprintf(storyTemplates[2], metrics[model.MetricConductivity])
	default:
		text = fmt.Sprintf(storyTemplates[3], metrics[model.MetricMoisture], metrics[model.MetricPH])
	}

	if loc != nil {
		text += fmt.Sprintf(" Conditions near %s look favorable for getting started this week.", loc.String())
	}
	return text
}

func (s *Synthesizer) weather() *model.Weather {
	return &model.Weather{
		TempC:       10 + s.rng.Float64()*25,
		Humidity:    30 + s.rng.Float64()*60,
		WindSpeed:   s.rng.Float64() * 10,
		Description: weatherDescriptions[s.rng.IntN(len(weatherDescriptions))],
	}
}

// sleep waits for the simulated latency, honoring cancellation.
func (s *Synthesizer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
