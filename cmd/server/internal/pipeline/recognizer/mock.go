package recognizer

import "context"

// Mock is a scriptable Recognizer for tests and offline development. Zero
// value behavior: every call succeeds with an empty Result, mirroring a
// recognizer that heard silence.
type Mock struct {
	// TranscribeFunc, when set, handles Transcribe calls.
	TranscribeFunc func(ctx context.Context, audioPath string, options *Options) (*Result, error)

	// Healthy is returned by HealthCheck.
	Healthy bool

	// Calls records the audio paths passed to Transcribe, in order.
	Calls []string
}

// NewMock creates a healthy mock returning empty results.
func NewMock() *Mock {
	return &Mock{Healthy: true}
}

func (m *Mock) Transcribe(ctx context.Context, audioPath string, options *Options) (*Result, error) {
	m.Calls = append(m.Calls, audioPath)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audioPath, options)
	}
	return &Result{Segments: []Segment{}}, nil
}

func (m *Mock) HealthCheck(ctx context.Context) (bool, error) {
	return m.Healthy, nil
}

func (m *Mock) Name() string {
	return "mock"
}
