package soilapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soiltales/soiltales-cli/internal/model"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"no content", http.StatusNoContent, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewClient(WithBaseURL(srv.URL))
			assert.Equal(t, tt.want, client.Probe(context.Background()))
		})
	}
}

func TestProbeUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // nothing is listening anymore

	client := NewClient(WithBaseURL(srv.URL))
	assert.False(t, client.Probe(context.Background()))
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/analyze", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "soil.jpg", header.Filename)
		assert.Equal(t, "41.8781", r.FormValue("lat"))
		assert.Equal(t, "-87.6298", r.FormValue("lon"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "rec-1",
			"imagePath": "uploads/soil.jpg",
			"analysis": {"pH": 6.5, "OM": 3.2, "P": 25, "EC": 1.8, "moisture": 22},
			"weather": {"tempC": 21.5, "humidity": 60, "windSpeed": 3.2, "weather": "clear sky"},
			"story": "Hello there, fellow gardener!"
		}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	loc := &model.Location{Lat: 41.8781, Lon: -87.6298}

	rec, err := client.Analyze(context.Background(), "soil.jpg", []byte("jpegbytes"), loc)
	require.NoError(t, err)

	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, "uploads/soil.jpg", rec.ImageRef)
	assert.Equal(t, 6.5, rec.SoilMetrics[model.MetricPH])
	require.NotNil(t, rec.Weather)
	assert.Equal(t, "clear sky", rec.Weather.Description)
	assert.Equal(t, loc, rec.Location)
	assert.False(t, rec.IsSynthetic)
}

func TestAnalyzeWithoutLocationOmitsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Empty(t, r.FormValue("lat"))
		assert.Empty(t, r.FormValue("lon"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"rec-2","imagePath":"uploads/s.jpg","analysis":{"pH":7.0},"story":"s"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	rec, err := client.Analyze(context.Background(), "s.jpg", []byte("x"), nil)
	require.NoError(t, err)
	assert.Nil(t, rec.Location)
	assert.Nil(t, rec.Weather)
}

func TestAnalyzeToleratesMissingMetricKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"rec-3","imagePath":"uploads/s.jpg","analysis":{"pH":6.8},"story":"partial"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	rec, err := client.Analyze(context.Background(), "s.jpg", []byte("x"), nil)
	require.NoError(t, err)
	assert.Len(t, rec.SoilMetrics, 1)
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"No image provided"}`},
		{"forbidden", http.StatusForbidden, `{"error":"Forbidden"}`},
		{"malformed body", http.StatusOK, `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(WithBaseURL(srv.URL))
			_, err := client.Analyze(context.Background(), "s.jpg", []byte("x"), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAnalysisFailed))
		})
	}
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		// The retried request must carry the full multipart body again.
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("photo")
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"retry-ok","imagePath":"p","analysis":{"pH":6.5},"story":"s"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	rec, err := client.Analyze(context.Background(), "s.jpg", []byte("x"), nil)
	require.NoError(t, err)
	assert.Equal(t, "retry-ok", rec.ID)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestAnalyzeNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid lat/lon"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Analyze(context.Background(), "s.jpg", []byte("x"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "Invalid lat/lon")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRequestVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/video", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"analysisId":"rec-1"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"videoPath":"media/v.mp4","videoUrl":"/media/v.mp4"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	result, err := client.RequestVideo(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "media/v.mp4", result.VideoRef)
	assert.Equal(t, "/media/v.mp4", result.VideoURL)
	assert.False(t, result.IsSynthetic)
}

func TestRequestVideoFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Analysis not found"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.RequestVideo(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVideoFailed))
	assert.Contains(t, err.Error(), "Analysis not found")
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"b","createdAt":"2025-03-02T10:00:00Z","imagePath":"p2","analysis":{"pH":7.1},"story":"newer","videoUrl":"/media/b.mp4"},
			{"id":"a","createdAt":"2025-03-01T10:00:00Z","imagePath":"p1","analysis":{"pH":6.2},"story":"older"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	records, err := client.History(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "/media/b.mp4", records[0].VideoURL)
	assert.Equal(t, "a", records[1].ID)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), records[1].Timestamp)
}

func TestHistoryEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	records, err := client.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Missing token"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.History(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHistoryUnavailable))
}

func TestAuthTokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithAuthToken("tok-123"))
	_, err := client.History(context.Background())
	require.NoError(t, err)
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()
	c := NewClient().(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultTimeout, c.http.Timeout)
	assert.NotNil(t, c.limiter)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.History(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHistoryUnavailable))
}
