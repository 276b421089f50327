// Package session coordinates one analysis lifecycle: upload validation,
// the remote-vs-fallback decision, and persistence. It is the only layer
// the UI (CLI or bridge server) talks to.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soiltales/soiltales-cli/internal/model"
	"github.com/soiltales/soiltales-cli/internal/store"
	"github.com/soiltales/soiltales-cli/internal/synth"
	"github.com/soiltales/soiltales-cli/pkg/soilapi"
)

// Errors surfaced by the orchestrator. Remote failures are never among
// them: analyze and video always produce a result, synthetic if need be.
var (
	// ErrNoFileSelected means Analyze was called without image bytes.
	ErrNoFileSelected = eris.New("no file selected")

	// ErrBusy is the re-entrancy guard: at most one analyze and one video
	// request may be in flight per session. Callers treat it as a benign
	// no-op, not a user-facing failure.
	ErrBusy = eris.New("operation already in flight")
)

// State is the position in the analysis lifecycle.
type State string

const (
	StateIdle               State = "idle"
	StateUploading          State = "uploading"
	StateAnalyzingRemote    State = "analyzing_remote"
	StateAnalyzingSynthetic State = "analyzing_synthetic"
	StateAnalyzed           State = "analyzed"
	StateVideoPending       State = "video_pending"
	StateVideoReady         State = "video_ready"
)

// AnalyzeRequest carries one photo submission.
type AnalyzeRequest struct {
	Filename string
	Image    []byte
	Location *model.Location
}

// Orchestrator sequences analyze/video/history operations against the
// gateway with a deterministic fallback to synthesized results, and
// persists outcomes through the record store.
type Orchestrator struct {
	gateway soilapi.Client
	synth   *synth.Synthesizer
	records *store.RecordStore

	mu             sync.Mutex
	state          State
	lastAnalyzedID string
	analyzing      bool
	videoPending   bool
}

// New wires an orchestrator from explicitly constructed dependencies.
func New(gateway soilapi.Client, synthesizer *synth.Synthesizer, records *store.RecordStore) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		synth:   synthesizer,
		records: records,
		state:   StateIdle,
	}
}

// State returns the current lifecycle position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Analyze runs the full analyze lifecycle. The remote path is taken only
// when the liveness probe succeeds AND the analyze call itself succeeds;
// any remote failure falls back to a synthesized result, so some result
// is always produced. The returned record is valid even when the error is
// ErrStorageUnavailable: persistence failed but the analysis itself did
// not, and the caller should still show it.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (model.AnalysisRecord, error) {
	if len(req.Image) == 0 {
		return model.AnalysisRecord{}, eris.Wrap(ErrNoFileSelected, "session: analyze")
	}

	if !o.begin(&o.analyzing, StateUploading) {
		return model.AnalysisRecord{}, eris.Wrap(ErrBusy, "session: analyze")
	}
	defer o.end(&o.analyzing)

	log := zap.L().With(zap.String("component", "session"))

	rec, err := o.runAnalysis(ctx, req, log)
	if err != nil {
		// Only context cancellation reaches here; remote failures were
		// already absorbed by the fallback.
		o.setState(StateIdle)
		return model.AnalysisRecord{}, err
	}

	saved, err := o.records.Save(ctx, rec)
	if err != nil {
		// The in-memory result is still usable; surface the storage
		// failure without withholding it.
		o.setState(StateAnalyzed)
		log.Warn("analysis completed but could not be persisted", zap.Error(err))
		return rec, err
	}
	rec = saved

	o.mu.Lock()
	o.state = StateAnalyzed
	o.lastAnalyzedID = rec.ID
	o.mu.Unlock()

	log.Info("analysis complete",
		zap.String("id", rec.ID),
		zap.Bool("synthetic", rec.IsSynthetic),
	)
	return rec, nil
}

// runAnalysis applies the probe-then-call decision rule. It fails only
// when the synthetic path itself is cancelled.
func (o *Orchestrator) runAnalysis(ctx context.Context, req AnalyzeRequest, log *zap.Logger) (model.AnalysisRecord, error) {
	if o.gateway.Probe(ctx) {
		o.setState(StateAnalyzingRemote)
		remote, err := o.gateway.Analyze(ctx, req.Filename, req.Image, req.Location)
		if err == nil {
			return remote, nil
		}
		log.Warn("remote analysis failed, falling back to synthetic", zap.Error(err))
	}

	o.setState(StateAnalyzingSynthetic)
	return o.synth.SynthesizeAnalysis(ctx, req.Filename, req.Location)
}

// GenerateVideo attaches a story video to a previously analyzed record,
// following the same probe/fallback rule as Analyze. An empty id targets
// the record produced by the last Analyze in this session. The returned
// result is valid even when the error is ErrStorageUnavailable.
func (o *Orchestrator) GenerateVideo(ctx context.Context, id string) (model.VideoResult, error) {
	if id == "" {
		o.mu.Lock()
		id = o.lastAnalyzedID
		o.mu.Unlock()
	}

	// The target record must exist before anything is rendered. When the
	// medium itself is unreadable the check is skipped: the video is still
	// produced and Update carries the storage failure back to the caller.
	if _, err := o.records.Get(ctx, id); err != nil && !errors.Is(err, store.ErrStorageUnavailable) {
		return model.VideoResult{}, err
	}

	if !o.begin(&o.videoPending, StateVideoPending) {
		return model.VideoResult{}, eris.Wrap(ErrBusy, "session: generate video")
	}
	defer o.end(&o.videoPending)

	log := zap.L().With(zap.String("component", "session"), zap.String("id", id))

	var result model.VideoResult
	if o.gateway.Probe(ctx) {
		remote, err := o.gateway.RequestVideo(ctx, id)
		if err == nil {
			result = remote
		} else {
			log.Warn("remote video generation failed, falling back to synthetic", zap.Error(err))
		}
	}
	if result.VideoRef == "" {
		synthetic, err := o.synth.SynthesizeVideo(ctx, id)
		if err != nil {
			o.setState(StateAnalyzed)
			return model.VideoResult{}, err
		}
		result = synthetic
	}

	if err := o.records.Update(ctx, id, result.Patch()); err != nil {
		o.setState(StateVideoReady)
		log.Warn("video generated but could not be persisted", zap.Error(err))
		return result, err
	}

	o.setState(StateVideoReady)
	log.Info("video ready", zap.Bool("synthetic", result.IsSynthetic))
	return result, nil
}

// ListHistory returns the analysis history: the backend's when reachable,
// degrading to the local collection, degrading to empty. It never fails.
func (o *Orchestrator) ListHistory(ctx context.Context) []model.AnalysisRecord {
	if o.gateway.Probe(ctx) {
		records, err := o.gateway.History(ctx)
		if err == nil {
			return records
		}
		zap.L().Warn("remote history unavailable, using local records", zap.Error(err))
	}
	return o.records.List(ctx)
}

// Search filters the local history.
func (o *Orchestrator) Search(ctx context.Context, query string) []model.AnalysisRecord {
	return o.records.Search(ctx, query)
}

// Paginate slices the local history.
func (o *Orchestrator) Paginate(ctx context.Context, page, pageSize int) model.Page {
	return o.records.Paginate(ctx, page, pageSize)
}

// ExportRecord serializes one stored record as an indented JSON blob.
// Writing it to a file is the caller's concern.
func (o *Orchestrator) ExportRecord(ctx context.Context, id string) ([]byte, error) {
	rec, err := o.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	blob, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, eris.Wrapf(err, "session: export %s", id)
	}
	return blob, nil
}

// DeleteRecord removes one record from the local history.
func (o *Orchestrator) DeleteRecord(ctx context.Context, id string) error {
	return o.records.Delete(ctx, id)
}

// ClearHistory removes the whole local history.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	return o.records.Clear(ctx)
}

// Usage reports the storage medium's capacity state.
func (o *Orchestrator) Usage(ctx context.Context) store.Usage {
	return o.records.Usage(ctx)
}

// Settings returns the stored preferences merged over defaults.
func (o *Orchestrator) Settings(ctx context.Context) model.Settings {
	return o.records.Settings(ctx)
}

// SaveSettings persists the preferences.
func (o *Orchestrator) SaveSettings(ctx context.Context, s model.Settings) error {
	return o.records.SaveSettings(ctx, s)
}

// begin claims the given in-flight flag, entering next on success.
func (o *Orchestrator) begin(flag *bool, next State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if *flag {
		return false
	}
	*flag = true
	o.state = next
	return true
}

func (o *Orchestrator) end(flag *bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*flag = false
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}
