package diarizer

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

	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
)

const defaultTimeout = 10 * time.Minute

// PyannoteClient implements Diarizer against a pyannote.audio HTTP sidecar.
// The sidecar holds the speaker-diarization pipeline loaded from the model
// hub once at startup; the hub access token is sent as a bearer credential
// so the sidecar can lazily (re)fetch model weights.
type PyannoteClient struct {
	apiURL     string
	hubToken   string
	httpClient *http.Client
}

// NewPyannoteClient creates a client for the sidecar at apiURL. hubToken is
// the model hub access credential; it may be empty when the sidecar runs
// fully offline.
func NewPyannoteClient(apiURL, hubToken string) *PyannoteClient {
	return &PyannoteClient{
		apiURL:     apiURL,
		hubToken:   hubToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type diarizeResponse struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
	NumSpeakers int `json:"num_speakers"`
}

// Diarize uploads the audio file and returns the speaker turns.
func (p *PyannoteClient) Diarize(ctx context.Context, audioPath string, options *Options) ([]transcript.SpeakerTurn, error) {
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

	if options != nil {
		if options.NumSpeakers > 0 {
			if err := writer.WriteField("num_speakers", strconv.Itoa(options.NumSpeakers)); err != nil {
				return nil, fmt.Errorf("write num_speakers field: %w", err)
			}
		}
		if options.MinSpeakers > 0 {
			if err := writer.WriteField("min_speakers", strconv.Itoa(options.MinSpeakers)); err != nil {
				return nil, fmt.Errorf("write min_speakers field: %w", err)
			}
		}
		if options.MaxSpeakers > 0 {
			if err := writer.WriteField("max_speakers", strconv.Itoa(options.MaxSpeakers)); err != nil {
				return nil, fmt.Errorf("write max_speakers field: %w", err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/diarize", p.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.hubToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.hubToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pyannote API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pyannote API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode pyannote response: %w", err)
	}

	turns := make([]transcript.SpeakerTurn, 0, len(decoded.Segments))
	for _, seg := range decoded.Segments {
		turns = append(turns, transcript.SpeakerTurn{
			Speaker: seg.Speaker,
			Start:   seg.Start,
			End:     seg.End,
		})
	}
	return turns, nil
}

// HealthCheck probes the sidecar's health endpoint.
func (p *PyannoteClient) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("create health request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// Name identifies this backend in logs and monitoring.
func (p *PyannoteClient) Name() string {
	return "pyannote"
}
