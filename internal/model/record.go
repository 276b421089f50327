package model

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// Metric keys produced by the soil analyzer. The backend is expected to
// return all five, but records with missing keys are kept as-is and the
// missing metrics render as unavailable.
const (
	MetricPH            = "pH"
	MetricOrganicMatter = "OM"
	MetricPhosphorus    = "P"
	MetricConductivity  = "EC"
	MetricMoisture      = "moisture"
)

// MetricKeys lists the expected soil metrics in display order.
var MetricKeys = []string{
	MetricPH,
	MetricOrganicMatter,
	MetricPhosphorus,
	MetricConductivity,
	MetricMoisture,
}

// SoilMetrics maps metric keys to measured values.
type SoilMetrics map[string]float64

// Validate rejects non-finite metric values. Missing keys are tolerated.
func (m SoilMetrics) Validate() error {
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Errorf("metric %s is not a finite number", k)
		}
	}
	return nil
}

// Clone returns a copy so callers cannot mutate stored records through a
// shared map.
func (m SoilMetrics) Clone() SoilMetrics {
	if m == nil {
		return nil
	}
	out := make(SoilMetrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Location holds the coordinates supplied with a photo.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String renders the coordinates the way the history search matches them.
func (l Location) String() string {
	return fmt.Sprintf("%.4f,%.4f", l.Lat, l.Lon)
}

// Weather is the ambient snapshot captured at analysis time.
type Weather struct {
	TempC       float64 `json:"tempC"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Description string  `json:"weather"`
}

// AnalysisRecord is the stored result of one soil-photo submission.
type AnalysisRecord struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	ImageRef    string      `json:"imageRef"`
	Location    *Location   `json:"location,omitempty"`
	SoilMetrics SoilMetrics `json:"soilMetrics"`
	Weather     *Weather    `json:"weather,omitempty"`
	Story       string      `json:"story"`
	VideoRef    string      `json:"videoRef,omitempty"`
	VideoURL    string      `json:"videoUrl,omitempty"`
	IsSynthetic bool        `json:"isSynthetic"`
}

// Clone returns a deep copy of the record.
func (r AnalysisRecord) Clone() AnalysisRecord {
	out := r
	out.SoilMetrics = r.SoilMetrics.Clone()
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	if r.Weather != nil {
		w := *r.Weather
		out.Weather = &w
	}
	return out
}

// RecordPatch carries a shallow merge-update for a stored record. Nil
// fields are left untouched; non-nil fields replace the existing value
// wholesale (nested values are never deep-merged). ID and Timestamp are
// immutable and therefore not patchable.
type RecordPatch struct {
	ImageRef    *string     `json:"imageRef,omitempty"`
	SoilMetrics SoilMetrics `json:"soilMetrics,omitempty"`
	Weather     *Weather    `json:"weather,omitempty"`
	Story       *string     `json:"story,omitempty"`
	VideoRef    *string     `json:"videoRef,omitempty"`
	VideoURL    *string     `json:"videoUrl,omitempty"`
}

// Apply merges the patch into the record.
func (r *AnalysisRecord) Apply(p RecordPatch) {
	if p.ImageRef != nil {
		r.ImageRef = *p.ImageRef
	}
	if p.SoilMetrics != nil {
		r.SoilMetrics = p.SoilMetrics.Clone()
	}
	if p.Weather != nil {
		w := *p.Weather
		r.Weather = &w
	}
	if p.Story != nil {
		r.Story = *p.Story
	}
	if p.VideoRef != nil {
		r.VideoRef = *p.VideoRef
	}
	if p.VideoURL != nil {
		r.VideoURL = *p.VideoURL
	}
}

// VideoResult is the payload returned by a video-generation call.
type VideoResult struct {
	VideoRef    string `json:"videoRef"`
	VideoURL    string `json:"videoUrl"`
	IsSynthetic bool   `json:"isSynthetic,omitempty"`
}

// Patch converts the result into the merge-update attached to a record.
func (v VideoResult) Patch() RecordPatch {
	ref, url := v.VideoRef, v.VideoURL
	return RecordPatch{VideoRef: &ref, VideoURL: &url}
}
