// Package api exposes the HTTP surface: transcription and translation
// uploads, the root status probe, and provider health. Handlers stay thin;
// all processing lives in the pipeline package.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/health"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
)

// Runner is the pipeline surface the handlers need; tests substitute a stub.
type Runner interface {
	Transcribe(ctx context.Context, upload pipeline.Upload, params pipeline.Params) (*pipeline.TranscribeResult, error)
	Translate(ctx context.Context, upload pipeline.Upload, params pipeline.Params) (*pipeline.TranslateResult, error)
}

// Handler carries the handlers' dependencies.
type Handler struct {
	runner        Runner
	maxUploadSize int64
	checkers      map[string]*health.Checker
}

// NewHandler creates the HTTP handler set. checkers maps provider names to
// their health checkers; nil disables the provider-health endpoint data.
func NewHandler(runner Runner, maxUploadSize int64, checkers map[string]*health.Checker) *Handler {
	return &Handler{
		runner:        runner,
		maxUploadSize: maxUploadSize,
		checkers:      checkers,
	}
}

// RegisterRoutes attaches all handlers to the router.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.HandleRoot)
	r.POST("/api/transcribe", h.HandleTranscribe)
	r.POST("/api/translate", h.HandleTranslate)
	r.GET("/api/health/providers", h.HandleProviderHealth)
}

// HandleRoot reports liveness.
func (h *Handler) HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// HandleTranscribe accepts a multipart audio upload and returns the ordered,
// speaker-attributed transcript.
//
// Form fields: file (required), beam_size, strategy (slice|assign),
// language, model_size, num_speakers, min_speakers, max_speakers.
func (h *Handler) HandleTranscribe(c *gin.Context) {
	upload, ok := h.readUpload(c)
	if !ok {
		return
	}

	params, ok := h.readParams(c)
	if !ok {
		return
	}

	result, err := h.runner.Transcribe(c.Request.Context(), upload, params)
	if err != nil {
		writePipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"request_id": result.RequestID,
		"language":   result.Language,
		"duration":   result.Duration,
		"segments":   result.Entries,
	})
}

// HandleTranslate accepts a multipart audio upload and returns the English
// translation as a single string.
func (h *Handler) HandleTranslate(c *gin.Context) {
	upload, ok := h.readUpload(c)
	if !ok {
		return
	}

	params, ok := h.readParams(c)
	if !ok {
		return
	}

	result, err := h.runner.Translate(c.Request.Context(), upload, params)
	if err != nil {
		writePipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"request_id":  result.RequestID,
		"language":    result.Language,
		"duration":    result.Duration,
		"translation": result.Translation,
	})
}

// HandleProviderHealth reports each provider's current probe status.
func (h *Handler) HandleProviderHealth(c *gin.Context) {
	statuses := make(map[string]health.ServiceStatus, len(h.checkers))
	allHealthy := true
	for name, checker := range h.checkers {
		status := checker.GetStatus()
		statuses[name] = status
		if !status.IsHealthy {
			allHealthy = false
		}
	}

	code := http.StatusOK
	if !allHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"healthy":   allHealthy,
		"providers": statuses,
	})
}

func (h *Handler) readUpload(c *gin.Context) (pipeline.Upload, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing file field"})
		return pipeline.Upload{}, false
	}
	if h.maxUploadSize > 0 && fileHeader.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "upload exceeds size limit"})
		return pipeline.Upload{}, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "could not read upload"})
		return pipeline.Upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "could not read upload"})
		return pipeline.Upload{}, false
	}

	return pipeline.Upload{Filename: fileHeader.Filename, Data: data}, true
}

func (h *Handler) readParams(c *gin.Context) (pipeline.Params, bool) {
	var params pipeline.Params

	if raw := c.PostForm("strategy"); raw != "" {
		strategy, err := transcript.ParseStrategy(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return params, false
		}
		params.Strategy = strategy
	}

	intField := func(name string, aliases ...string) (int, bool) {
		raw := c.PostForm(name)
		for _, alias := range aliases {
			if raw != "" {
				break
			}
			raw = c.PostForm(alias)
		}
		if raw == "" {
			return 0, true
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid " + name})
			return 0, false
		}
		return v, true
	}

	var ok bool
	// beamSize is accepted as a legacy spelling of beam_size.
	if params.BeamSize, ok = intField("beam_size", "beamSize"); !ok {
		return params, false
	}
	if params.NumSpeakers, ok = intField("num_speakers"); !ok {
		return params, false
	}
	if params.MinSpeakers, ok = intField("min_speakers"); !ok {
		return params, false
	}
	if params.MaxSpeakers, ok = intField("max_speakers"); !ok {
		return params, false
	}

	params.Model = c.PostForm("model_size")

	if raw := c.PostForm("language"); raw != "" {
		lang, err := normalizeLanguage(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid language hint"})
			return params, false
		}
		params.Language = lang
	}

	return params, true
}

// normalizeLanguage canonicalizes a language hint ("EN", "en-US", "eng") to
// the base ISO 639-1 code the recognizer expects.
func normalizeLanguage(hint string) (string, error) {
	tag, err := language.Parse(hint)
	if err != nil {
		return "", err
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// writePipelineError translates a classified pipeline failure into the HTTP
// response contract: the mapped status code and a bare detail message.
func writePipelineError(c *gin.Context, err error) {
	perr := pipeline.AsError(err)
	c.JSON(perr.HTTPStatus(), gin.H{
		"detail": perr.Message,
		"code":   perr.Code,
	})
}
