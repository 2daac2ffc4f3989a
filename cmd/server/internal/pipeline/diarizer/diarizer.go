// Package diarizer abstracts speaker diarization backends. The production
// backend is a pyannote HTTP sidecar; tests use a scriptable mock. Like
// recognition backends, diarizer instances are process-wide singletons
// created at startup.
package diarizer

import (
	"context"

	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
)

// Options carries optional diarization parameters.
type Options struct {
	// NumSpeakers forces an exact speaker count (0 = auto-detect).
	NumSpeakers int

	// MinSpeakers / MaxSpeakers bound the auto-detected count when set.
	MinSpeakers int
	MaxSpeakers int
}

// Diarizer is the interface speaker diarization backends implement.
//
// Diarize returns the raw speaker turns for the recording. Turns may overlap
// (concurrent speech) and carry opaque backend tags; validation and label
// normalization happen in the transcript package. An audio file with no
// detected speech yields an empty slice, not an error.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, options *Options) ([]transcript.SpeakerTurn, error)
	HealthCheck(ctx context.Context) (bool, error)
	Name() string
}
