// Package recognizer abstracts speech-to-text backends behind a single
// interface so the pipeline can run against a faster-whisper sidecar in
// production and a mock in tests without caring which is loaded.
//
// Backend instances are expensive to initialize (they hold a loaded model)
// and are created once at process start, then shared across requests.
package recognizer

import (
	"context"
	"time"
)

// Segment is one time-aligned span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the complete output of one recognition call.
type Result struct {
	Segments []Segment `json:"segments"`
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
}

// Task selects the decoding objective.
type Task string

const (
	// TaskTranscribe produces text in the spoken language.
	TaskTranscribe Task = "transcribe"

	// TaskTranslate produces English text regardless of source language.
	TaskTranslate Task = "translate"
)

// Options carries optional decoding parameters; implementations supply
// defaults for zero values.
type Options struct {
	// Model is the backend model size (e.g. "base", "large-v2").
	Model string

	// Language forces a source language (ISO 639-1); empty auto-detects.
	Language string

	// BeamSize is the decoding search width (default 5).
	BeamSize int

	// Task is transcription or translation (default TaskTranscribe).
	Task Task

	// Temperature is the sampling temperature (default 0, deterministic).
	Temperature float64

	// Timeout overrides the backend's default per-call timeout.
	Timeout time.Duration
}

// Recognizer is the interface speech-to-text backends implement.
//
// Transcribe must respect context cancellation, wrap backend errors with
// context, and return a valid Result with empty Segments (not an error) for
// silent audio. HealthCheck must be lightweight; it feeds the health checker
// and the provider status endpoint. Name identifies the backend in logs and
// metrics.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string, options *Options) (*Result, error)
	HealthCheck(ctx context.Context) (bool, error)
	Name() string
}
