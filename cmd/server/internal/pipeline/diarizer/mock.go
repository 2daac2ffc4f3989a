package diarizer

import (
	"context"

	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
)

// Mock is a scriptable Diarizer for tests. Zero value behavior: no speakers
// detected, healthy.
type Mock struct {
	// Turns is returned by Diarize when DiarizeFunc is unset.
	Turns []transcript.SpeakerTurn

	// DiarizeFunc, when set, handles Diarize calls.
	DiarizeFunc func(ctx context.Context, audioPath string, options *Options) ([]transcript.SpeakerTurn, error)

	// Healthy is returned by HealthCheck.
	Healthy bool

	// Calls records the audio paths passed to Diarize, in order.
	Calls []string
}

// NewMock creates a healthy mock returning the given turns.
func NewMock(turns ...transcript.SpeakerTurn) *Mock {
	return &Mock{Turns: turns, Healthy: true}
}

func (m *Mock) Diarize(ctx context.Context, audioPath string, options *Options) ([]transcript.SpeakerTurn, error) {
	m.Calls = append(m.Calls, audioPath)
	if m.DiarizeFunc != nil {
		return m.DiarizeFunc(ctx, audioPath, options)
	}
	return m.Turns, nil
}

func (m *Mock) HealthCheck(ctx context.Context) (bool, error) {
	return m.Healthy, nil
}

func (m *Mock) Name() string {
	return "mock"
}
