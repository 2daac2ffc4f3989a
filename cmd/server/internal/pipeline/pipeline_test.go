package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/diarizer"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/recognizer"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
)

// wavUpload builds a PCM16 mono 16 kHz WAV of the given duration.
func wavUpload(seconds float64) Upload {
	numSamples := int(seconds * 16000)
	buf := &bytes.Buffer{}
	dataLen := numSamples * 2

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(16000))
	binary.Write(buf, binary.LittleEndian, uint32(16000*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for i := 0; i < numSamples; i++ {
		binary.Write(buf, binary.LittleEndian, int16(i%128))
	}
	return Upload{Filename: "meeting.wav", Data: buf.Bytes()}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, diar diarizer.Diarizer, rec recognizer.Recognizer) (*Pipeline, string) {
	t.Helper()
	tempDir := t.TempDir()
	p, err := New(diar, rec, Config{TempDir: tempDir, Model: "base"}, testLogger())
	require.NoError(t, err)
	return p, tempDir
}

func TestProvidersSerializedByDefault(t *testing.T) {
	p, _ := newTestPipeline(t, diarizer.NewMock(), recognizer.NewMock())
	assert.NotNil(t, p.diarSem, "diarizer calls serialize unless DiarizerReentrant is set")
	assert.NotNil(t, p.recSem, "recognizer calls serialize unless RecognizerReentrant is set")

	open, err := New(diarizer.NewMock(), recognizer.NewMock(),
		Config{TempDir: t.TempDir(), Model: "base", DiarizerReentrant: true, RecognizerReentrant: true},
		testLogger())
	require.NoError(t, err)
	assert.Nil(t, open.diarSem)
	assert.Nil(t, open.recSem)
}

// assertWorkspaceClean verifies no per-request artifacts survive a run.
func assertWorkspaceClean(t *testing.T, tempDir string) {
	t.Helper()
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary artifacts left behind")
}

func TestTranscribeSliceMode(t *testing.T) {
	diar := diarizer.NewMock(
		transcript.SpeakerTurn{Speaker: "SPEAKER_01", Start: 2.0, End: 3.0},
		transcript.SpeakerTurn{Speaker: "SPEAKER_00", Start: 0.0, End: 1.5},
	)
	texts := []string{" hello there ", "general reply"}
	call := 0
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		text := texts[call%len(texts)]
		call++
		return &recognizer.Result{Text: text, Language: "en"}, nil
	}

	p, tempDir := newTestPipeline(t, diar, rec)
	result, err := p.Transcribe(context.Background(), wavUpload(4), Params{})
	require.NoError(t, err)

	require.Len(t, result.Entries, 2)
	// Turn order follows start time, not diarizer arrival order.
	assert.Equal(t, "Speaker 1", result.Entries[0].Speaker)
	assert.Equal(t, 0.0, result.Entries[0].Start)
	assert.Equal(t, "hello there", result.Entries[0].Text)
	assert.Equal(t, "Speaker 2", result.Entries[1].Speaker)
	assert.Equal(t, "general reply", result.Entries[1].Text)
	assert.Equal(t, "en", result.Language)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, 2, call, "one recognition call per turn")

	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeNoSpeechDetected(t *testing.T) {
	p, tempDir := newTestPipeline(t, diarizer.NewMock(), recognizer.NewMock())

	result, err := p.Transcribe(context.Background(), wavUpload(1), Params{})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeNoSpeechDetectedAssignMode(t *testing.T) {
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		return &recognizer.Result{
			Segments: []recognizer.Segment{
				{Start: 0, End: 1, Text: "hello"},
				{Start: 1, End: 2, Text: "world"},
			},
			Language: "en",
		}, nil
	}

	p, tempDir := newTestPipeline(t, diarizer.NewMock(), rec)
	result, err := p.Transcribe(context.Background(), wavUpload(2), Params{Strategy: transcript.StrategyRecognizeThenAssign})
	require.NoError(t, err)

	// Zero turns means an empty transcript, not Unknown-labeled entries.
	assert.Empty(t, result.Entries)
	assert.Equal(t, "en", result.Language)
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeTurnBeyondAudioEnd(t *testing.T) {
	diar := diarizer.NewMock(
		transcript.SpeakerTurn{Speaker: "SPEAKER_00", Start: 0, End: 1},
		transcript.SpeakerTurn{Speaker: "SPEAKER_00", Start: 5, End: 6},
		transcript.SpeakerTurn{Speaker: "SPEAKER_01", Start: 1, End: 1}, // zero-length
	)
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		return &recognizer.Result{Text: "spoken", Language: "en"}, nil
	}

	// 2 s of audio: the [5,6] turn clamps to nothing, as does the
	// zero-length turn; both keep their entries with empty text.
	p, tempDir := newTestPipeline(t, diar, rec)
	result, err := p.Transcribe(context.Background(), wavUpload(2), Params{})
	require.NoError(t, err)

	require.Len(t, result.Entries, 3)
	assert.Equal(t, "spoken", result.Entries[0].Text)
	assert.Equal(t, "", result.Entries[1].Text)
	assert.Equal(t, "", result.Entries[2].Text)
	assert.Len(t, rec.Calls, 1, "empty slices never reach the provider")
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeAssignMode(t *testing.T) {
	diar := diarizer.NewMock(
		transcript.SpeakerTurn{Speaker: "SPEAKER_00", Start: 0.0, End: 2.0},
		transcript.SpeakerTurn{Speaker: "SPEAKER_01", Start: 2.0, End: 4.0},
	)
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		return &recognizer.Result{
			Segments: []recognizer.Segment{
				{Start: 0.2, End: 1.8, Text: "first speaker"},
				{Start: 2.1, End: 3.9, Text: "second speaker"},
				{Start: 4.5, End: 5.0, Text: "outside all turns"},
			},
			Language: "en",
		}, nil
	}

	p, tempDir := newTestPipeline(t, diar, rec)
	result, err := p.Transcribe(context.Background(), wavUpload(6), Params{Strategy: transcript.StrategyRecognizeThenAssign})
	require.NoError(t, err)

	require.Len(t, result.Entries, 3)
	assert.Equal(t, "Speaker 1", result.Entries[0].Speaker)
	assert.Equal(t, "Speaker 2", result.Entries[1].Speaker)
	assert.Equal(t, transcript.UnknownSpeaker, result.Entries[2].Speaker)
	assertWorkspaceClean(t, tempDir)

	// Whole-file mode makes exactly one recognition call.
	assert.Len(t, rec.Calls, 1)
}

func TestTranscribeEmptyUpload(t *testing.T) {
	p, tempDir := newTestPipeline(t, diarizer.NewMock(), recognizer.NewMock())

	_, err := p.Transcribe(context.Background(), Upload{Filename: "empty.wav"}, Params{})
	require.Error(t, err)
	perr := AsError(err)
	assert.Equal(t, VALIDATION_FAILED, perr.Code)
	assert.Equal(t, 400, perr.HTTPStatus())
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeGarbageUpload(t *testing.T) {
	p, tempDir := newTestPipeline(t, diarizer.NewMock(), recognizer.NewMock())

	_, err := p.Transcribe(context.Background(), Upload{Filename: "notes.txt", Data: []byte("not audio at all")}, Params{})
	require.Error(t, err)
	assert.Equal(t, VALIDATION_FAILED, AsError(err).Code)
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeDiarizationFailure(t *testing.T) {
	diar := diarizer.NewMock()
	diar.DiarizeFunc = func(ctx context.Context, audioPath string, options *diarizer.Options) ([]transcript.SpeakerTurn, error) {
		return nil, errors.New("sidecar exploded")
	}

	p, tempDir := newTestPipeline(t, diar, recognizer.NewMock())
	result, err := p.Transcribe(context.Background(), wavUpload(1), Params{})
	require.Error(t, err)
	assert.Nil(t, result, "no partial transcript on failure")

	perr := AsError(err)
	assert.Equal(t, DIARIZATION_FAILED, perr.Code)
	assert.Equal(t, 500, perr.HTTPStatus())
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeRecognitionFailure(t *testing.T) {
	diar := diarizer.NewMock(transcript.SpeakerTurn{Speaker: "SPEAKER_00", Start: 0, End: 1})
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		return nil, errors.New("model crashed")
	}

	p, tempDir := newTestPipeline(t, diar, rec)
	result, err := p.Transcribe(context.Background(), wavUpload(2), Params{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, RECOGNITION_FAILED, AsError(err).Code)
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeInvalidProviderTimestamps(t *testing.T) {
	cases := []struct {
		name string
		turn transcript.SpeakerTurn
	}{
		{"negative start", transcript.SpeakerTurn{Speaker: "A", Start: -1, End: 2}},
		{"NaN end", transcript.SpeakerTurn{Speaker: "A", Start: 0, End: math.NaN()}},
		{"inverted interval", transcript.SpeakerTurn{Speaker: "A", Start: 3, End: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, tempDir := newTestPipeline(t, diarizer.NewMock(tc.turn), recognizer.NewMock())

			_, err := p.Transcribe(context.Background(), wavUpload(4), Params{})
			require.Error(t, err)
			assert.Equal(t, VALIDATION_FAILED, AsError(err).Code)
			assertWorkspaceClean(t, tempDir)
		})
	}
}

func TestTranscribeArtifactVanishes(t *testing.T) {
	diar := diarizer.NewMock()
	diar.DiarizeFunc = func(ctx context.Context, audioPath string, options *diarizer.Options) ([]transcript.SpeakerTurn, error) {
		// Simulate an external sweeper removing the working directory
		// while the request is in flight.
		require.NoError(t, os.RemoveAll(filepath.Dir(audioPath)))
		return []transcript.SpeakerTurn{{Speaker: "SPEAKER_00", Start: 0, End: 1}}, nil
	}
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		return &recognizer.Result{Text: "should not matter"}, nil
	}

	p, tempDir := newTestPipeline(t, diar, rec)
	_, err := p.Transcribe(context.Background(), wavUpload(2), Params{})
	require.Error(t, err)
	assert.Equal(t, ARTIFACT_MISSING, AsError(err).Code)
	assert.Equal(t, 404, AsError(err).HTTPStatus())
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeCancelledContext(t *testing.T) {
	p, tempDir := newTestPipeline(t, diarizer.NewMock(), recognizer.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Transcribe(ctx, wavUpload(1), Params{})
	require.Error(t, err)
	assertWorkspaceClean(t, tempDir)
}

func TestTranscribeStableRequestID(t *testing.T) {
	diar := diarizer.NewMock()
	p, _ := newTestPipeline(t, diar, recognizer.NewMock())

	upload := wavUpload(1)
	first, err := p.Transcribe(context.Background(), upload, Params{})
	require.NoError(t, err)
	second, err := p.Transcribe(context.Background(), upload, Params{})
	require.NoError(t, err)
	assert.Equal(t, first.RequestID, second.RequestID, "same payload, same id")
}

func TestTranscribeBeamSizeDefaults(t *testing.T) {
	diar := diarizer.NewMock(transcript.SpeakerTurn{Speaker: "SPEAKER_00", Start: 0, End: 1})
	var gotBeam int
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		gotBeam = options.BeamSize
		return &recognizer.Result{Text: "ok"}, nil
	}

	p, _ := newTestPipeline(t, diar, rec)
	_, err := p.Transcribe(context.Background(), wavUpload(2), Params{})
	require.NoError(t, err)
	assert.Equal(t, 5, gotBeam)

	_, err = p.Transcribe(context.Background(), wavUpload(2), Params{BeamSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, gotBeam)
}

func TestTranslate(t *testing.T) {
	diar := diarizer.NewMock()
	var gotTask recognizer.Task
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		gotTask = options.Task
		return &recognizer.Result{Text: "  hello world  ", Language: "fr"}, nil
	}

	p, tempDir := newTestPipeline(t, diar, rec)
	result, err := p.Translate(context.Background(), wavUpload(2), Params{})
	require.NoError(t, err)

	assert.Equal(t, recognizer.TaskTranslate, gotTask)
	assert.Equal(t, "hello world", result.Translation)
	assert.Equal(t, "fr", result.Language)
	assert.Empty(t, diar.Calls, "translation skips diarization")
	assertWorkspaceClean(t, tempDir)
}

func TestTranslateFailureCleansUp(t *testing.T) {
	rec := recognizer.NewMock()
	rec.TranscribeFunc = func(ctx context.Context, audioPath string, options *recognizer.Options) (*recognizer.Result, error) {
		return nil, errors.New("backend down")
	}

	p, tempDir := newTestPipeline(t, diarizer.NewMock(), rec)
	result, err := p.Translate(context.Background(), wavUpload(1), Params{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, RECOGNITION_FAILED, AsError(err).Code)
	assertWorkspaceClean(t, tempDir)
}
