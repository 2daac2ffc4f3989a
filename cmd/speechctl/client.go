package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// apiClient talks to the speech service over HTTP.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

// newAPIClient resolves the server URL (flag > env > default) and builds the
// client. Uploads can take minutes on long recordings.
func newAPIClient(cmd *cobra.Command) *apiClient {
	baseURL, _ := cmd.Flags().GetString("server")
	if baseURL == "" {
		baseURL = os.Getenv("SPEECH_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return &apiClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Minute},
	}
}

// UploadAudio posts the audio file plus form fields to the given path and
// returns the raw response body. Non-2xx responses become errors carrying
// the server's detail message.
func (c *apiClient) UploadAudio(path, audioPath string, fields map[string]string) ([]byte, error) {
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
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write %s field: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// Get performs a GET and returns the raw response body.
func (c *apiClient) Get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Detail)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

// printJSON pretty-prints a JSON response to stdout, falling back to raw
// output for non-JSON bodies.
func printJSON(data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

// addOptionalString adds a set string flag to the form fields.
func addOptionalString(cmd *cobra.Command, fields map[string]string, flag string, formKeys ...string) {
	v, _ := cmd.Flags().GetString(flag)
	if v == "" {
		return
	}
	key := flag
	if len(formKeys) > 0 {
		key = formKeys[0]
	}
	fields[key] = v
}

// addOptionalInt adds a changed int flag to the form fields.
func addOptionalInt(cmd *cobra.Command, fields map[string]string, flag string, formKeys ...string) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	v, _ := cmd.Flags().GetInt(flag)
	key := flag
	if len(formKeys) > 0 {
		key = formKeys[0]
	}
	fields[key] = fmt.Sprintf("%d", v)
}
