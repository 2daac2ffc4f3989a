// Package pipeline orchestrates one transcription or translation request
// end to end: persist the upload, run the diarization and recognition
// providers, fuse their outputs into a speaker-normalized transcript, and
// guarantee that every temporary artifact is removed on every exit path.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/samvaad-ai/speech-service/cmd/server/internal/audio"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/metrics"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/diarizer"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/recognizer"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
	"github.com/samvaad-ai/speech-service/pkg/logger"
)

// State names the lifecycle stage a request is in. Transitions are strictly
// forward; Failed is terminal and reachable from any stage.
type State string

const (
	StateReceived    State = "received"
	StatePersisted   State = "persisted"
	StateDiarizing   State = "diarizing"
	StateRecognizing State = "recognizing"
	StateAligning    State = "aligning"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Upload is the raw request payload handed to the pipeline.
type Upload struct {
	Filename string
	Data     []byte
}

// Params carries per-request tuning.
type Params struct {
	// Strategy selects the fusion approach; zero value means the configured
	// default.
	Strategy transcript.Strategy

	// BeamSize overrides the default decoding beam width when > 0.
	BeamSize int

	// Model overrides the configured recognizer model size when set.
	Model string

	// Language forces a source language (ISO 639-1); empty auto-detects.
	Language string

	// Diarization bounds, all optional.
	NumSpeakers int
	MinSpeakers int
	MaxSpeakers int
}

// TranscribeResult is a completed transcription run.
type TranscribeResult struct {
	RequestID string
	Entries   []transcript.Entry
	Language  string
	Duration  float64
}

// TranslateResult is a completed translation run.
type TranslateResult struct {
	RequestID   string
	Translation string
	Language    string
	Duration    float64
}

// Config holds the pipeline's startup-time settings.
type Config struct {
	// TempDir is the root under which per-request working directories are
	// created.
	TempDir string

	// Model and DefaultBeamSize are passed to the recognizer unless a
	// request overrides them.
	Model           string
	DefaultBeamSize int

	// DefaultStrategy is used when a request does not name one.
	DefaultStrategy transcript.Strategy

	// DiarizerReentrant / RecognizerReentrant declare whether the provider
	// tolerates concurrent calls. Non-reentrant providers get a
	// single-permit semaphore in front of them.
	DiarizerReentrant   bool
	RecognizerReentrant bool
}

// Pipeline runs requests against a fixed pair of providers. Safe for
// concurrent use; provider access is serialized when the provider is
// declared non-reentrant.
type Pipeline struct {
	diar   diarizer.Diarizer
	rec    recognizer.Recognizer
	cfg    Config
	logger *slog.Logger

	diarSem *semaphore.Weighted
	recSem  *semaphore.Weighted
}

// New creates a pipeline. cfg.TempDir must exist or be creatable; it is
// created eagerly so persistence failures at request time always mean a
// runtime problem, not a misconfiguration.
func New(diar diarizer.Diarizer, rec recognizer.Recognizer, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp audio dir: %w", err)
	}
	if cfg.DefaultBeamSize <= 0 {
		cfg.DefaultBeamSize = 5
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = transcript.StrategySliceThenRecognize
	}

	p := &Pipeline{diar: diar, rec: rec, cfg: cfg, logger: log}
	if !cfg.DiarizerReentrant {
		p.diarSem = semaphore.NewWeighted(1)
	}
	if !cfg.RecognizerReentrant {
		p.recSem = semaphore.NewWeighted(1)
	}
	return p, nil
}

// run tracks one request through its lifecycle. Cleanup is idempotent and
// fires on every exit path, so a panic in a later stage still removes the
// working directory.
type run struct {
	id      string
	state   State
	workDir string
	cleanup sync.Once
	logger  *slog.Logger
}

func (r *run) advance(s State) {
	r.state = s
}

func (r *run) release() {
	r.cleanup.Do(func() {
		if r.workDir == "" {
			return
		}
		if err := os.RemoveAll(r.workDir); err != nil {
			r.logger.Warn("failed to remove working directory",
				"request_id", r.id, "dir", r.workDir, "error", err)
		}
	})
}

// requestID derives a stable identifier from the upload content, so retries
// of the same payload correlate in logs.
func requestID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Transcribe runs the full diarize-recognize-align pipeline and returns the
// ordered, speaker-normalized transcript. On any failure the returned error
// is a classified *Error and no partial transcript is returned.
func (p *Pipeline) Transcribe(ctx context.Context, upload Upload, params Params) (*TranscribeResult, error) {
	r := &run{id: requestID(upload.Data), state: StateReceived, logger: p.logger}
	defer r.release()

	started := time.Now()
	clip, sourcePath, perr := p.persist(ctx, r, upload)
	if perr != nil {
		return nil, p.fail(r, started, perr)
	}

	strategy := params.Strategy
	if strategy == "" {
		strategy = p.cfg.DefaultStrategy
	}

	var (
		turns    []transcript.SpeakerTurn
		segments []transcript.RecognitionSegment
		language string
	)

	var perr2 *Error
	switch strategy {
	case transcript.StrategySliceThenRecognize:
		turns, segments, language, perr2 = p.runSliced(ctx, r, clip, sourcePath, params)
	case transcript.StrategyRecognizeThenAssign:
		turns, segments, language, perr2 = p.runWholeFile(ctx, r, sourcePath, params)
	default:
		perr2 = NewValidationError(StateReceived, fmt.Sprintf("unknown alignment strategy %q", strategy), nil)
	}
	if perr2 != nil {
		return nil, p.fail(r, started, perr2)
	}

	r.advance(StateAligning)
	alignStart := time.Now()
	entries, err := transcript.Align(strategy, turns, segments)
	if err != nil {
		metrics.RecordStage("align", false)
		return nil, p.fail(r, started, classifyAlignError(err))
	}
	metrics.RecordStage("align", true)
	metrics.RecordDuration("align", time.Since(alignStart).Seconds())

	r.advance(StateCompleted)
	r.release()
	p.finish(r, started)

	return &TranscribeResult{
		RequestID: r.id,
		Entries:   entries,
		Language:  language,
		Duration:  clip.Duration(),
	}, nil
}

// Translate recognizes the whole file with the translation objective and
// returns the English text. Diarization is skipped; translated text carries
// no speaker attribution.
func (p *Pipeline) Translate(ctx context.Context, upload Upload, params Params) (*TranslateResult, error) {
	r := &run{id: requestID(upload.Data), state: StateReceived, logger: p.logger}
	defer r.release()

	started := time.Now()
	clip, sourcePath, perr := p.persist(ctx, r, upload)
	if perr != nil {
		return nil, p.fail(r, started, perr)
	}

	r.advance(StateRecognizing)
	result, perr2 := p.recognize(ctx, r, sourcePath, params, recognizer.TaskTranslate)
	if perr2 != nil {
		return nil, p.fail(r, started, perr2)
	}

	r.advance(StateCompleted)
	r.release()
	p.finish(r, started)

	return &TranslateResult{
		RequestID:   r.id,
		Translation: strings.TrimSpace(result.Text),
		Language:    result.Language,
		Duration:    clip.Duration(),
	}, nil
}

// persist validates the upload, decodes it to the canonical in-memory form,
// and writes the canonical WAV artifact into a fresh per-request directory.
func (p *Pipeline) persist(ctx context.Context, r *run, upload Upload) (*audio.Clip, string, *Error) {
	if len(upload.Data) == 0 {
		return nil, "", NewValidationError(StateReceived, "empty upload", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", NewValidationError(StateReceived, "request cancelled before processing", err)
	}

	clip, err := audio.Decode(upload.Data)
	if err != nil {
		return nil, "", NewValidationError(StateReceived, fmt.Sprintf("unsupported audio upload %q", upload.Filename), err)
	}

	workDir, err := os.MkdirTemp(p.cfg.TempDir, r.id+"-")
	if err != nil {
		return nil, "", NewArtifactError(StateReceived, "could not create working directory", err)
	}
	r.workDir = workDir

	sourcePath := filepath.Join(workDir, "source.wav")
	if err := clip.WriteFile(sourcePath); err != nil {
		return nil, "", NewArtifactError(StateReceived, "could not persist audio artifact", err)
	}

	r.advance(StatePersisted)
	return clip, sourcePath, nil
}

// runSliced implements slice-then-recognize: diarize the whole file, then
// recognize each turn's audio slice so the fusion step can zip them 1:1.
func (p *Pipeline) runSliced(ctx context.Context, r *run, clip *audio.Clip, sourcePath string, params Params) ([]transcript.SpeakerTurn, []transcript.RecognitionSegment, string, *Error) {
	r.advance(StateDiarizing)
	turns, perr := p.diarize(ctx, r, sourcePath, params)
	if perr != nil {
		return nil, nil, "", perr
	}

	// No detected speech is a success with an empty transcript, not an
	// error. Skip recognition entirely.
	if len(turns) == 0 {
		return turns, nil, "", nil
	}

	if err := transcript.ValidateTurns(turns); err != nil {
		return nil, nil, "", classifyAlignError(err)
	}
	sorted := transcript.SortTurnsByStart(turns)

	r.advance(StateRecognizing)
	var language string
	segments := make([]transcript.RecognitionSegment, 0, len(sorted))
	for i, turn := range sorted {
		slice := clip.Slice(turn.Start, turn.End)

		// A slice that is empty after clamping (zero-length turn, or a
		// turn past the end of the audio) keeps its entry with empty
		// text; the provider is never asked to transcribe silence.
		if slice.Samples() == 0 {
			segments = append(segments, transcript.RecognitionSegment{
				Start: turn.Start,
				End:   turn.End,
			})
			continue
		}

		slicePath := filepath.Join(r.workDir, fmt.Sprintf("turn_%03d.wav", i))
		if err := slice.WriteFile(slicePath); err != nil {
			return nil, nil, "", NewArtifactError(StateRecognizing, "could not persist turn slice", err)
		}

		result, perr := p.recognize(ctx, r, slicePath, params, recognizer.TaskTranscribe)
		if perr != nil {
			return nil, nil, "", perr
		}
		if language == "" {
			language = result.Language
		}
		segments = append(segments, transcript.RecognitionSegment{
			Start: turn.Start,
			End:   turn.End,
			Text:  result.Text,
		})
	}
	return sorted, segments, language, nil
}

// runWholeFile implements recognize-then-assign: diarization and whole-file
// recognition run concurrently, then each recognized segment is attributed
// by containment.
func (p *Pipeline) runWholeFile(ctx context.Context, r *run, sourcePath string, params Params) ([]transcript.SpeakerTurn, []transcript.RecognitionSegment, string, *Error) {
	r.advance(StateDiarizing)

	var (
		turns  []transcript.SpeakerTurn
		result *recognizer.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, perr := p.diarize(gctx, r, sourcePath, params)
		if perr != nil {
			return perr
		}
		turns = t
		return nil
	})
	g.Go(func() error {
		res, perr := p.recognize(gctx, r, sourcePath, params, recognizer.TaskTranscribe)
		if perr != nil {
			return perr
		}
		result = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, "", AsError(err)
	}
	r.advance(StateRecognizing)

	// No detected speech completes with an empty transcript; recognized
	// segments are discarded rather than attributed to nobody.
	if len(turns) == 0 {
		return turns, nil, result.Language, nil
	}

	segments := make([]transcript.RecognitionSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, transcript.RecognitionSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return turns, segments, result.Language, nil
}

func (p *Pipeline) diarize(ctx context.Context, r *run, path string, params Params) ([]transcript.SpeakerTurn, *Error) {
	if perr := checkArtifact(path, StateDiarizing); perr != nil {
		return nil, perr
	}
	if p.diarSem != nil {
		if err := p.diarSem.Acquire(ctx, 1); err != nil {
			return nil, NewDiarizationError(err)
		}
		defer p.diarSem.Release(1)
	}

	opts := &diarizer.Options{
		NumSpeakers: params.NumSpeakers,
		MinSpeakers: params.MinSpeakers,
		MaxSpeakers: params.MaxSpeakers,
	}

	started := time.Now()
	turns, err := p.diar.Diarize(ctx, path, opts)
	metrics.RecordDuration("diarize", time.Since(started).Seconds())
	if err != nil {
		metrics.RecordStage("diarize", false)
		metrics.RecordError("diarize", string(DIARIZATION_FAILED))
		return nil, NewDiarizationError(err)
	}
	metrics.RecordStage("diarize", true)
	logger.LogPipelineStage(p.logger, "diarize", "completed", r.id, time.Since(started).Milliseconds(), "")
	return turns, nil
}

func (p *Pipeline) recognize(ctx context.Context, r *run, path string, params Params, task recognizer.Task) (*recognizer.Result, *Error) {
	if perr := checkArtifact(path, StateRecognizing); perr != nil {
		return nil, perr
	}
	if p.recSem != nil {
		if err := p.recSem.Acquire(ctx, 1); err != nil {
			return nil, NewRecognitionError(err)
		}
		defer p.recSem.Release(1)
	}

	beamSize := params.BeamSize
	if beamSize <= 0 {
		beamSize = p.cfg.DefaultBeamSize
	}
	model := params.Model
	if model == "" {
		model = p.cfg.Model
	}
	opts := &recognizer.Options{
		Model:    model,
		Language: params.Language,
		BeamSize: beamSize,
		Task:     task,
	}

	started := time.Now()
	result, err := p.rec.Transcribe(ctx, path, opts)
	metrics.RecordDuration("recognize", time.Since(started).Seconds())
	if err != nil {
		metrics.RecordStage("recognize", false)
		metrics.RecordError("recognize", string(RECOGNITION_FAILED))
		return nil, NewRecognitionError(err)
	}
	metrics.RecordStage("recognize", true)
	logger.LogPipelineStage(p.logger, "recognize", string(task), r.id, time.Since(started).Milliseconds(), "")
	return result, nil
}

// checkArtifact guards against the working file vanishing mid-request, for
// example an external cleaner sweeping the temp dir.
func checkArtifact(path string, stage State) *Error {
	if _, err := os.Stat(path); err != nil {
		return NewArtifactError(stage, "audio artifact missing", err)
	}
	return nil
}

// fail finalizes a failed run: cleanup fires, the state moves to Failed, the
// classified error is logged and counted. No result accompanies the error.
func (p *Pipeline) fail(r *run, started time.Time, perr *Error) *Error {
	r.release()
	r.advance(StateFailed)
	metrics.RecordError("pipeline", string(perr.Code))
	metrics.RecordStage("pipeline", false)
	logger.LogPipelineStage(p.logger, string(perr.Stage), "failed", r.id, time.Since(started).Milliseconds(), string(perr.Code))
	return perr
}

func (p *Pipeline) finish(r *run, started time.Time) {
	metrics.RecordStage("pipeline", true)
	logger.LogPipelineStage(p.logger, string(StateCompleted), "completed", r.id, time.Since(started).Milliseconds(), "")
}
