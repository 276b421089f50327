package soilapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/soiltales/soiltales-cli/internal/model"
	"github.com/soiltales/soiltales-cli/internal/resilience"
)

const (
	defaultBaseURL      = "http://localhost:5000"
	defaultTimeout      = 30 * time.Second
	defaultProbeTimeout = 5 * time.Second
)

// Typed failures of the gateway. Callers substitute synthetic results for
// analyze/video failures and an empty list for history failures instead of
// surfacing these to the user.
var (
	ErrAnalysisFailed     = eris.New("analysis request failed")
	ErrVideoFailed        = eris.New("video request failed")
	ErrHistoryUnavailable = eris.New("history unavailable")
)

// Client is the typed gateway to the SoilTales backend. It never assumes
// the backend is reachable: every operation is deadline-bounded and Probe
// reports reachability without ever raising.
type Client interface {
	// Probe checks the liveness endpoint. Any network error, timeout, or
	// non-success status yields false.
	Probe(ctx context.Context) bool

	// Analyze uploads the photo (and optional coordinates) and returns
	// the backend's analysis.
	Analyze(ctx context.Context, filename string, image []byte, loc *model.Location) (model.AnalysisRecord, error)

	// RequestVideo asks the backend to render the story video for a
	// stored analysis.
	RequestVideo(ctx context.Context, recordID string) (model.VideoResult, error)

	// History fetches the server-side history, most recent first.
	History(ctx context.Context) ([]model.AnalysisRecord, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default backend URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTimeout overrides the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithAuthToken attaches a bearer token to every request. The token is
// opaque to this layer.
func WithAuthToken(token string) Option {
	return func(c *httpClient) {
		c.authToken = token
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the client-side request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	baseURL   string
	authToken string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// NewClient creates a backend gateway.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func (c *httpClient) Analyze(ctx context.Context, filename string, image []byte, loc *model.Location) (model.AnalysisRecord, error) {
	body, contentType, err := encodeMultipart(filename, image, loc)
	if err != nil {
		return model.AnalysisRecord{}, eris.Wrap(ErrAnalysisFailed, err.Error())
	}

	decoded, err := resilience.DoVal(ctx, c.withRetryLog("analyze"), func(ctx context.Context) (analyzeResponse, error) {
		var out analyzeResponse
		err := c.do(ctx, http.MethodPost, "/api/analyze", bytes.NewReader(body), contentType, &out)
		return out, err
	})
	if err != nil {
		return model.AnalysisRecord{}, eris.Wrap(ErrAnalysisFailed, err.Error())
	}

	rec, err := decoded.toRecord(loc)
	if err != nil {
		return model.AnalysisRecord{}, eris.Wrap(ErrAnalysisFailed, err.Error())
	}
	return rec, nil
}

func (c *httpClient) RequestVideo(ctx context.Context, recordID string) (model.VideoResult, error) {
	payload, err := json.Marshal(videoRequest{AnalysisID: recordID})
	if err != nil {
		return model.VideoResult{}, eris.Wrap(ErrVideoFailed, err.Error())
	}

	decoded, err := resilience.DoVal(ctx, c.withRetryLog("video"), func(ctx context.Context) (videoResponse, error) {
		var out videoResponse
		err := c.do(ctx, http.MethodPost, "/api/video", bytes.NewReader(payload), "application/json", &out)
		return out, err
	})
	if err != nil {
		return model.VideoResult{}, eris.Wrap(ErrVideoFailed, err.Error())
	}

	return model.VideoResult{VideoRef: decoded.VideoPath, VideoURL: decoded.VideoURL}, nil
}

func (c *httpClient) History(ctx context.Context) ([]model.AnalysisRecord, error) {
	decoded, err := resilience.DoVal(ctx, c.withRetryLog("history"), func(ctx context.Context) (historyResponse, error) {
		var out historyResponse
		err := c.do(ctx, http.MethodGet, "/api/history", nil, "", &out)
		return out, err
	})
	if err != nil {
		return nil, eris.Wrap(ErrHistoryUnavailable, err.Error())
	}

	records := make([]model.AnalysisRecord, 0, len(decoded.Items))
	for _, it := range decoded.Items {
		rec, err := it.toRecord()
		if err != nil {
			return nil, eris.Wrap(ErrHistoryUnavailable, err.Error())
		}
		records = append(records, rec)
	}
	return records, nil
}

// do executes one request and decodes a JSON body into out. Non-success
// statuses become errors, transient ones marked retryable.
func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "soilapi: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "soilapi: create request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are retryable up to the caller's
		// deadline; past it the fallback path takes over.
		return resilience.NewTransientError(eris.Wrap(err, "soilapi: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "soilapi: read response"), 0)
	}

	if resp.StatusCode != http.StatusOK {
		msg := backendError(respBody)
		err := eris.Errorf("soilapi: unexpected status %d: %s", resp.StatusCode, msg)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "soilapi: unmarshal response")
	}
	return nil
}

func (c *httpClient) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *httpClient) withRetryLog(operation string) resilience.RetryConfig {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("soilapi", operation)
	return cfg
}

// backendError extracts the backend's error envelope, falling back to the
// raw body.
func backendError(body []byte) string {
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return string(body)
}

// encodeMultipart builds the analyze upload: the photo part plus lat/lon
// form fields when coordinates were shared.
func encodeMultipart(filename string, image []byte, loc *model.Location) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("photo", filename)
	if err != nil {
		return nil, "", eris.Wrap(err, "soilapi: create photo part")
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", eris.Wrap(err, "soilapi: write photo part")
	}

	if loc != nil {
		if err := w.WriteField("lat", fmt.Sprintf("%v", loc.Lat)); err != nil {
			return nil, "", eris.Wrap(err, "soilapi: write lat field")
		}
		if err := w.WriteField("lon", fmt.Sprintf("%v", loc.Lon)); err != nil {
			return nil, "", eris.Wrap(err, "soilapi: write lon field")
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", eris.Wrap(err, "soilapi: close multipart writer")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
