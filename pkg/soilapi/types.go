package soilapi

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/soiltales/soiltales-cli/internal/model"
)

// analyzeResponse is the body of POST /api/analyze.
type analyzeResponse struct {
	ID        string            `json:"id"`
	ImagePath string            `json:"imagePath"`
	Location  *model.Location   `json:"location,omitempty"`
	Analysis  model.SoilMetrics `json:"analysis"`
	Weather   *model.Weather    `json:"weather,omitempty"`
	Story     string            `json:"story"`
}

// toRecord validates the decoded body into a typed record. Missing metric
// keys are tolerated; non-finite values are not.
func (r analyzeResponse) toRecord(loc *model.Location) (model.AnalysisRecord, error) {
	if err := r.Analysis.Validate(); err != nil {
		return model.AnalysisRecord{}, eris.Wrap(err, "soilapi: invalid analysis payload")
	}
	if r.Location == nil {
		r.Location = loc
	}
	return model.AnalysisRecord{
		ID:          r.ID,
		ImageRef:    r.ImagePath,
		Location:    r.Location,
		SoilMetrics: r.Analysis,
		Weather:     r.Weather,
		Story:       r.Story,
	}, nil
}

// videoRequest is the body of POST /api/video.
type videoRequest struct {
	AnalysisID string `json:"analysisId"`
}

// videoResponse is the body returned by POST /api/video.
type videoResponse struct {
	VideoPath string `json:"videoPath"`
	VideoURL  string `json:"videoUrl"`
}

// historyResponse is the body of GET /api/history. Items arrive
// most-recent-first, matching the local history order.
type historyResponse struct {
	Items []historyItem `json:"items"`
}

// historyItem is one stored analysis as the backend serializes it.
type historyItem struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	ImagePath string            `json:"imagePath"`
	Location  *model.Location   `json:"location,omitempty"`
	Analysis  model.SoilMetrics `json:"analysis"`
	Weather   *model.Weather    `json:"weather,omitempty"`
	Story     string            `json:"story"`
	VideoPath string            `json:"videoPath,omitempty"`
	VideoURL  string            `json:"videoUrl,omitempty"`
}

func (it historyItem) toRecord() (model.AnalysisRecord, error) {
	if err := it.Analysis.Validate(); err != nil {
		return model.AnalysisRecord{}, eris.Wrapf(err, "soilapi: invalid history item %s", it.ID)
	}
	return model.AnalysisRecord{
		ID:          it.ID,
		Timestamp:   it.CreatedAt,
		ImageRef:    it.ImagePath,
		Location:    it.Location,
		SoilMetrics: it.Analysis,
		Weather:     it.Weather,
		Story:       it.Story,
		VideoRef:    it.VideoPath,
		VideoURL:    it.VideoURL,
	}, nil
}

// errorResponse is the backend's error envelope.
type errorResponse struct {
	Error string `json:"error"`
}
