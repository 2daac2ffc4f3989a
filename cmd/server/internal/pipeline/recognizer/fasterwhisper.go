package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	defaultTimeout  = 10 * time.Minute // transcription time roughly tracks audio length
	defaultModel    = "base"
	defaultBeamSize = 5
)

// FasterWhisperClient implements Recognizer against a faster-whisper HTTP
// sidecar. The sidecar loads the model once at startup and accepts
// multipart/form-data uploads, so per-call cost is inference only.
type FasterWhisperClient struct {
	apiURL     string
	httpClient *http.Client
}

// NewFasterWhisperClient creates a client for the sidecar at apiURL
// (e.g. "http://whisper:8082").
func NewFasterWhisperClient(apiURL string) *FasterWhisperClient {
	return &FasterWhisperClient{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Transcribe uploads the audio file and decodes the JSON response.
func (f *FasterWhisperClient) Transcribe(ctx context.Context, audioPath string, options *Options) (*Result, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy file data: %w", err)
	}

	model := defaultModel
	if options != nil && options.Model != "" {
		model = options.Model
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}

	beamSize := defaultBeamSize
	if options != nil && options.BeamSize > 0 {
		beamSize = options.BeamSize
	}
	if err := writer.WriteField("beam_size", strconv.Itoa(beamSize)); err != nil {
		return nil, fmt.Errorf("write beam_size field: %w", err)
	}

	task := TaskTranscribe
	if options != nil && options.Task != "" {
		task = options.Task
	}
	if err := writer.WriteField("task", string(task)); err != nil {
		return nil, fmt.Errorf("write task field: %w", err)
	}

	if options != nil && options.Language != "" {
		if err := writer.WriteField("language", options.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}

	temperature := 0.0
	if options != nil && options.Temperature > 0 {
		temperature = options.Temperature
	}
	if err := writer.WriteField("temperature", fmt.Sprintf("%.1f", temperature)); err != nil {
		return nil, fmt.Errorf("write temperature field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/transcribe", f.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := f.httpClient
	if options != nil && options.Timeout > 0 {
		client = &http.Client{Timeout: options.Timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	if result.Segments == nil {
		result.Segments = []Segment{}
	}
	return &result, nil
}

// HealthCheck probes the sidecar's health endpoint.
func (f *FasterWhisperClient) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.apiURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("create health request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// Name identifies this backend in logs and monitoring.
func (f *FasterWhisperClient) Name() string {
	return "faster-whisper"
}
