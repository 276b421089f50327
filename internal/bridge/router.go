// Package bridge exposes the orchestrator over the same HTTP surface as
// the original SoilTales backend, so the web frontend can point at this
// client and keep working offline.
package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/soiltales/soiltales-cli/internal/model"
	"github.com/soiltales/soiltales-cli/internal/session"
	"github.com/soiltales/soiltales-cli/internal/store"
)

// maxUploadBytes caps analyze uploads.
const maxUploadBytes = 16 << 20

type Router struct {
	session *session.Orchestrator
}

// NewRouter builds the bridge handler. CORS is wide open: the bridge
// binds to localhost and serves the local frontend only.
func NewRouter(orch *session.Orchestrator) http.Handler {
	r := &Router{session: orch}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Route("/api", func(rt chi.Router) {
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Post("/video", r.wrap(r.handleVideo))
		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Get("/history/page", r.wrap(r.handleHistoryPage))
		rt.Delete("/history/{id}", r.wrap(r.handleDeleteRecord))
		rt.Delete("/history", r.wrap(r.handleClearHistory))
		rt.Get("/records/{id}/export", r.wrap(r.handleExport))
		rt.Get("/settings", r.wrap(r.handleGetSettings))
		rt.Put("/settings", r.wrap(r.handlePutSettings))
		rt.Get("/usage", r.wrap(r.handleUsage))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps the orchestrator's typed errors onto HTTP statuses.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		switch {
		case errors.Is(err, session.ErrNoFileSelected):
			writeError(w, http.StatusBadRequest, "no photo provided")
		case errors.Is(err, session.ErrBusy):
			// The re-entrancy guard: the in-flight operation keeps going,
			// the duplicate request is simply not started.
			writeError(w, http.StatusConflict, "operation already in flight")
		case errors.Is(err, store.ErrRecordNotFound):
			writeError(w, http.StatusNotFound, "record not found")
		case errors.Is(err, store.ErrStorageUnavailable):
			writeError(w, http.StatusInsufficientStorage, "local storage unavailable")
		default:
			zap.L().Error("bridge: request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

// analyzeResponse mirrors the original backend's analyze body, with an
// extra storageError field when the result could not be persisted.
type analyzeResponse struct {
	model.AnalysisRecord
	StorageError string `json:"storageError,omitempty"`
}

// POST /api/analyze — multipart upload: "photo" file plus optional
// lat/lon form fields.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return nil
	}

	file, header, err := req.FormFile("photo")
	if err != nil {
		return session.ErrNoFileSelected
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return err
	}

	loc, ok := parseLocation(req.FormValue("lat"), req.FormValue("lon"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid lat/lon")
		return nil
	}

	rec, err := r.session.Analyze(req.Context(), session.AnalyzeRequest{
		Filename: header.Filename,
		Image:    image,
		Location: loc,
	})

	// Persistence failure still carries a usable result; surface both.
	if errors.Is(err, store.ErrStorageUnavailable) {
		writeJSON(w, http.StatusOK, analyzeResponse{
			AnalysisRecord: rec,
			StorageError:   "result could not be saved to local history",
		})
		return nil
	}
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, analyzeResponse{AnalysisRecord: rec})
	return nil
}

// POST /api/video — body: {"analysisId": "<id>"}.
func (r *Router) handleVideo(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		AnalysisID string `json:"analysisId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil
	}
	if body.AnalysisID == "" {
		writeError(w, http.StatusBadRequest, "analysisId is required")
		return nil
	}

	result, err := r.session.GenerateVideo(req.Context(), body.AnalysisID)
	if errors.Is(err, store.ErrStorageUnavailable) {
		// Same contract as analyze: the asset exists, the bookkeeping
		// failed.
		writeJSON(w, http.StatusOK, result)
		return nil
	}
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, result)
	return nil
}

// GET /api/history[?q=...] — {"items": [...]}.
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	var items []model.AnalysisRecord
	if q := req.URL.Query().Get("q"); q != "" {
		items = r.session.Search(req.Context(), q)
	} else {
		items = r.session.ListHistory(req.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
	return nil
}

// GET /api/history/page?page=N&size=M
func (r *Router) handleHistoryPage(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("size"))
	writeJSON(w, http.StatusOK, r.session.Paginate(req.Context(), page, size))
	return nil
}

func (r *Router) handleDeleteRecord(w http.ResponseWriter, req *http.Request) error {
	if err := r.session.DeleteRecord(req.Context(), chi.URLParam(req, "id")); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	return nil
}

func (r *Router) handleClearHistory(w http.ResponseWriter, req *http.Request) error {
	if err := r.session.ClearHistory(req.Context()); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	return nil
}

func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	blob, err := r.session.ExportRecord(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=analysis.json")
	_, err = w.Write(blob)
	return err
}

func (r *Router) handleGetSettings(w http.ResponseWriter, req *http.Request) error {
	writeJSON(w, http.StatusOK, r.session.Settings(req.Context()))
	return nil
}

func (r *Router) handlePutSettings(w http.ResponseWriter, req *http.Request) error {
	// Merge over the stored values so a partial body only touches the
	// keys it names.
	settings := r.session.Settings(req.Context())
	if err := json.NewDecoder(req.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil
	}
	if err := r.session.SaveSettings(req.Context(), settings); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, settings)
	return nil
}

func (r *Router) handleUsage(w http.ResponseWriter, req *http.Request) error {
	writeJSON(w, http.StatusOK, r.session.Usage(req.Context()))
	return nil
}

func parseLocation(latStr, lonStr string) (*model.Location, bool) {
	if latStr == "" && lonStr == "" {
		return nil, true
	}
	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	if latErr != nil || lonErr != nil {
		return nil, false
	}
	return &model.Location{Lat: lat, Lon: lon}, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
