package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soiltales/soiltales-cli/internal/model"
)

// Sentinel errors surfaced by the record store.
var (
	// ErrStorageUnavailable means the durable medium cannot be written
	// (disabled, inaccessible, or over quota). Writes fail with it; reads
	// degrade to empty results instead.
	ErrStorageUnavailable = eris.New("storage unavailable")

	// ErrRecordNotFound means no record with the given id exists.
	ErrRecordNotFound = eris.New("record not found")
)

// Logical keys in the durable medium. The whole history is one JSON array
// under historyKey; preferences are one JSON object under settingsKey.
const (
	historyKey  = "soiltales_history"
	settingsKey = "soiltales_settings"
)

// DefaultCapacity bounds the history; saving past it evicts the oldest
// records (strict tail truncation, never LRU).
const DefaultCapacity = 50

// DefaultBytesLimit mirrors the quota of the original browser medium.
const DefaultBytesLimit = int64(5 * 1024 * 1024)

// Medium is the durable key-value storage underneath the record store.
type Medium interface {
	// Get returns the value for key, with found=false when absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Probe checks writability without lasting side effects
	// (write-then-remove of a sentinel key).
	Probe(ctx context.Context) error

	// Usage reports the bytes currently held.
	Usage(ctx context.Context) (int64, error)

	Close() error
}

// Usage describes the medium's capacity state. Available=false means the
// store is degrading to no-ops and every other field is zero.
type Usage struct {
	Available  bool    `json:"available"`
	BytesUsed  int64   `json:"bytesUsed"`
	BytesLimit int64   `json:"bytesLimit"`
	Percentage float64 `json:"percentage"`
}

// RecordStore owns the bounded analysis history and the settings blob.
// All access to the underlying medium goes through it. The collection is
// read-then-written as a whole on every mutation; concurrent mutation
// from separate processes is last-writer-wins.
type RecordStore struct {
	mu         sync.Mutex
	medium     Medium
	capacity   int
	bytesLimit int64
	now        func() time.Time
}

// Option tunes the record store.
type Option func(*RecordStore)

// WithCapacity overrides the history capacity.
func WithCapacity(n int) Option {
	return func(s *RecordStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithBytesLimit overrides the quota used for usage reporting and the
// over-quota write check.
func WithBytesLimit(n int64) Option {
	return func(s *RecordStore) {
		if n > 0 {
			s.bytesLimit = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *RecordStore) {
		s.now = now
	}
}

// New creates a record store over the given medium.
func New(medium Medium, opts ...Option) *RecordStore {
	s := &RecordStore{
		medium:     medium,
		capacity:   DefaultCapacity,
		bytesLimit: DefaultBytesLimit,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases the underlying medium.
func (s *RecordStore) Close() error {
	return s.medium.Close()
}

// Save inserts the record at the head of the history, assigning an id and
// timestamp when absent, and truncates to capacity. Returns the record as
// stored. Fails with ErrStorageUnavailable when the medium cannot be
// written; the caller still holds the in-memory record in that case.
func (s *RecordStore) Save(ctx context.Context, rec model.AnalysisRecord) (model.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.medium.Probe(ctx); err != nil {
		return model.AnalysisRecord{}, eris.Wrap(ErrStorageUnavailable, "store: save")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	existing, _ := s.load(ctx)
	records := append([]model.AnalysisRecord{rec}, existing...)
	if len(records) > s.capacity {
		records = records[:s.capacity]
	}

	if err := s.persist(ctx, records); err != nil {
		return model.AnalysisRecord{}, err
	}
	return rec, nil
}

// List returns the history head-first. Read failures and corrupted
// payloads degrade to an empty slice; history browsing favors
// availability over strict correctness.
func (s *RecordStore) List(ctx context.Context) []model.AnalysisRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, _ := s.load(ctx)
	return records
}

// Get returns the record with the given id. An unreadable medium is
// ErrStorageUnavailable, never ErrRecordNotFound: absence can only be
// claimed after a successful read.
func (s *RecordStore) Get(ctx context.Context, id string) (model.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return model.AnalysisRecord{}, eris.Wrapf(ErrRecordNotFound, "store: get %s", id)
}

// Update merges the patch into the stored record and re-persists the
// whole collection. The merge is shallow: nested values present in the
// patch replace the stored ones wholesale.
func (s *RecordStore) Update(ctx context.Context, id string, patch model.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.medium.Probe(ctx); err != nil {
		return eris.Wrap(ErrStorageUnavailable, "store: update")
	}

	records, _ := s.load(ctx)
	for i := range records {
		if records[i].ID == id {
			records[i].Apply(patch)
			return s.persist(ctx, records)
		}
	}
	return eris.Wrapf(ErrRecordNotFound, "store: update %s", id)
}

// Delete removes one record.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.medium.Probe(ctx); err != nil {
		return eris.Wrap(ErrStorageUnavailable, "store: delete")
	}

	records, _ := s.load(ctx)
	kept := records[:0:0]
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return eris.Wrapf(ErrRecordNotFound, "store: delete %s", id)
	}
	return s.persist(ctx, kept)
}

// Clear removes the entire history.
func (s *RecordStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.medium.Probe(ctx); err != nil {
		return eris.Wrap(ErrStorageUnavailable, "store: clear")
	}
	if err := s.medium.Delete(ctx, historyKey); err != nil {
		return eris.Wrap(ErrStorageUnavailable, "store: clear")
	}
	return nil
}

// Search filters the history by case-insensitive substring match over the
// story text, the timestamp string, and the coordinate string when a
// location is present. A blank query returns the unfiltered list.
func (s *RecordStore) Search(ctx context.Context, query string) []model.AnalysisRecord {
	records := s.List(ctx)

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}

	matched := records[:0:0]
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Story), q) ||
			strings.Contains(strings.ToLower(rec.Timestamp.Format(time.RFC3339)), q) ||
			(rec.Location != nil && strings.Contains(rec.Location.String(), q)) {
			matched = append(matched, rec)
		}
	}
	return matched
}

// Paginate slices the history. Pages are 1-based; out-of-range pages
// return empty data with the true totals.
func (s *RecordStore) Paginate(ctx context.Context, page, pageSize int) model.Page {
	records := s.List(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	total := len(records)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	data := []model.AnalysisRecord{}
	if start < total {
		end := start + pageSize
		if end > total {
			end = total
		}
		data = records[start:end]
	}

	return model.Page{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// Usage reports the medium's capacity state. Available=false signals the
// rest of the system to degrade rather than fail.
func (s *RecordStore) Usage(ctx context.Context) Usage {
	if err := s.medium.Probe(ctx); err != nil {
		return Usage{Available: false}
	}

	used, err := s.medium.Usage(ctx)
	if err != nil {
		zap.L().Warn("store: usage introspection failed", zap.Error(err))
		return Usage{Available: true, BytesLimit: s.bytesLimit}
	}

	return Usage{
		Available:  true,
		BytesUsed:  used,
		BytesLimit: s.bytesLimit,
		Percentage: float64(used) / float64(s.bytesLimit) * 100,
	}
}

// Settings returns the persisted preferences merged shallowly over the
// defaults. Read problems degrade to the defaults.
func (s *RecordStore) Settings(ctx context.Context) model.Settings {
	defaults := model.DefaultSettings()

	raw, found, err := s.medium.Get(ctx, settingsKey)
	if err != nil || !found {
		return defaults
	}

	merged := defaults
	if err := json.Unmarshal(raw, &merged); err != nil {
		zap.L().Warn("store: corrupted settings blob, using defaults", zap.Error(err))
		return defaults
	}
	return merged
}

// SaveSettings persists the preferences blob.
func (s *RecordStore) SaveSettings(ctx context.Context, settings model.Settings) error {
	if err := s.medium.Probe(ctx); err != nil {
		return eris.Wrap(ErrStorageUnavailable, "store: save settings")
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return eris.Wrap(err, "store: marshal settings")
	}
	if err := s.medium.Set(ctx, settingsKey, raw); err != nil {
		return eris.Wrap(ErrStorageUnavailable, "store: save settings")
	}
	return nil
}

// load reads and decodes the history. A medium read failure surfaces as
// ErrStorageUnavailable; corrupted payloads degrade to an empty history.
// Callers must hold s.mu.
func (s *RecordStore) load(ctx context.Context) ([]model.AnalysisRecord, error) {
	raw, found, err := s.medium.Get(ctx, historyKey)
	if err != nil {
		zap.L().Warn("store: history read failed", zap.Error(err))
		return []model.AnalysisRecord{}, eris.Wrap(ErrStorageUnavailable, "store: read history")
	}
	if !found {
		return []model.AnalysisRecord{}, nil
	}

	var records []model.AnalysisRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		zap.L().Warn("store: corrupted history payload, starting empty", zap.Error(err))
		return []model.AnalysisRecord{}, nil
	}
	return records, nil
}

// persist writes the whole collection, enforcing the byte quota.
// Callers must hold s.mu.
func (s *RecordStore) persist(ctx context.Context, records []model.AnalysisRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "store: marshal history")
	}
	if int64(len(raw)) > s.bytesLimit {
		return eris.Wrapf(ErrStorageUnavailable, "store: history exceeds %d byte quota", s.bytesLimit)
	}
	if err := s.medium.Set(ctx, historyKey, raw); err != nil {
		return eris.Wrap(ErrStorageUnavailable, "store: persist history")
	}
	return nil
}
