// Package transcript implements the alignment and fusion engine that
// reconciles speaker diarization turns with speech recognition segments into
// one ordered, speaker-normalized transcript.
//
// The package is pure: no I/O, no provider dependencies. Provider outputs are
// validated at this boundary before any alignment runs, so the engine never
// operates on malformed timestamps.
package transcript

import (
	"fmt"
	"math"
)

// UnknownSpeaker is the sentinel label assigned to recognition segments that
// no diarization turn fully contains. It never enters the label table.
const UnknownSpeaker = "Unknown"

// SpeakerTurn is one continuous interval attributed to a single speaker by
// diarization. Speaker carries the raw backend tag (e.g. "SPEAKER_00");
// display labels are assigned later by a LabelTable. Turns from one
// diarization run may overlap each other (concurrent speech).
type SpeakerTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// RecognitionSegment is a time-bounded span of audio paired with recognized
// text. Text may be empty (silence or an empty slice).
type RecognitionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Entry is one line of the fused transcript: a normalized speaker label, a
// time range, and the recognized text. Entries are immutable once returned
// and ordered by Start ascending within a transcript.
type Entry struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// ValidationError reports a malformed value from a provider stream. It is
// surfaced before alignment begins; timestamps are never silently clamped.
type ValidationError struct {
	Source string // "turns" or "segments"
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s[%d]: %s", e.Source, e.Index, e.Reason)
}

// InvariantError signals a contract violation inside the engine itself, such
// as out-of-order output entries. It indicates a bug, not a transient
// condition, and must never be downgraded to a partial result.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "alignment invariant violated: " + e.Reason
}

// ValidateTurns rejects turns with negative, NaN, or inverted timestamps.
// Zero-length turns (End == Start) are permitted and pass through alignment
// as zero-length entries.
func ValidateTurns(turns []SpeakerTurn) error {
	for i, turn := range turns {
		if err := checkInterval("turns", i, turn.Start, turn.End); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSegments rejects recognition segments with negative, NaN, or
// inverted timestamps.
func ValidateSegments(segments []RecognitionSegment) error {
	for i, seg := range segments {
		if err := checkInterval("segments", i, seg.Start, seg.End); err != nil {
			return err
		}
	}
	return nil
}

func checkInterval(source string, index int, start, end float64) error {
	if math.IsNaN(start) || math.IsNaN(end) {
		return &ValidationError{Source: source, Index: index, Reason: "NaN timestamp"}
	}
	if start < 0 || end < 0 {
		return &ValidationError{Source: source, Index: index, Reason: fmt.Sprintf("negative timestamp (start=%v end=%v)", start, end)}
	}
	if end < start {
		return &ValidationError{Source: source, Index: index, Reason: fmt.Sprintf("end %v before start %v", end, start)}
	}
	return nil
}
