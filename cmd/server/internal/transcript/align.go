package transcript

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects how diarization turns and recognition segments are fused.
type Strategy string

const (
	// StrategySliceThenRecognize expects one recognition segment per turn,
	// produced by recognizing exactly the audio slice of that turn. Alignment
	// is a 1:1 zip in turn-start order.
	StrategySliceThenRecognize Strategy = "slice"

	// StrategyRecognizeThenAssign expects independently-timed segments from a
	// single whole-file recognition pass. Each segment is attributed to the
	// earliest-starting turn that fully contains its interval, or to
	// UnknownSpeaker when none does.
	StrategyRecognizeThenAssign Strategy = "assign"
)

// ParseStrategy maps a request-level strategy name to a Strategy, defaulting
// to slice-then-recognize for an empty value.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", string(StrategySliceThenRecognize):
		return StrategySliceThenRecognize, nil
	case string(StrategyRecognizeThenAssign):
		return StrategyRecognizeThenAssign, nil
	default:
		return "", fmt.Errorf("unknown alignment strategy %q", s)
	}
}

// SortTurnsByStart returns a copy of turns ordered by start time ascending.
// The sort is stable so turns sharing a start keep their arrival order,
// which fixes the tie-break order for containment matching.
func SortTurnsByStart(turns []SpeakerTurn) []SpeakerTurn {
	sorted := make([]SpeakerTurn, len(turns))
	copy(sorted, turns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	return sorted
}

// Align fuses turns and segments into ordered transcript entries per the
// strategy. Both inputs are validated first; negative or NaN timestamps are
// rejected, never clamped. Align is a pure function of its inputs: re-running
// it on the same inputs yields an identical transcript.
//
// In slice mode, segments must be the per-turn recognition results in the
// same order as SortTurnsByStart(turns); the orchestrator produces them that
// way. In assign mode, segments are whole-file results in arrival order.
func Align(strategy Strategy, turns []SpeakerTurn, segments []RecognitionSegment) ([]Entry, error) {
	if err := ValidateTurns(turns); err != nil {
		return nil, err
	}
	if err := ValidateSegments(segments); err != nil {
		return nil, err
	}

	var entries []Entry
	var err error
	switch strategy {
	case StrategySliceThenRecognize:
		entries, err = alignSlices(turns, segments)
	case StrategyRecognizeThenAssign:
		entries, err = alignByContainment(turns, segments)
	default:
		return nil, fmt.Errorf("unknown alignment strategy %q", strategy)
	}
	if err != nil {
		return nil, err
	}

	if err := checkOrdered(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// alignSlices zips turn-sorted slices with their recognized texts. Empty
// slices keep their entry with empty text rather than being dropped; an
// empty turn set yields an empty transcript.
func alignSlices(turns []SpeakerTurn, segments []RecognitionSegment) ([]Entry, error) {
	if len(turns) == 0 {
		return []Entry{}, nil
	}
	sorted := SortTurnsByStart(turns)
	if len(segments) != len(sorted) {
		return nil, &InvariantError{Reason: fmt.Sprintf("slice mode needs one recognition result per turn, got %d results for %d turns", len(segments), len(sorted))}
	}

	table := NewLabelTable()
	entries := make([]Entry, 0, len(sorted))
	for i, turn := range sorted {
		entries = append(entries, Entry{
			Speaker: table.Normalize(turn.Speaker),
			Start:   turn.Start,
			End:     turn.End,
			Text:    strings.TrimSpace(segments[i].Text),
		})
	}
	return entries, nil
}

// alignByContainment attributes each segment to the earliest-starting turn
// that fully contains it (turn.Start <= seg.Start && seg.End <= turn.End).
// Segments contained by no turn get the UnknownSpeaker sentinel. Output
// follows segment arrival order; labels are assigned in that traversal order.
func alignByContainment(turns []SpeakerTurn, segments []RecognitionSegment) ([]Entry, error) {
	sorted := SortTurnsByStart(turns)
	table := NewLabelTable()

	entries := make([]Entry, 0, len(segments))
	for _, seg := range segments {
		speaker := UnknownSpeaker
		for _, turn := range sorted {
			if turn.Start > seg.Start {
				break // later turns start even further in
			}
			if seg.End <= turn.End {
				speaker = table.Normalize(turn.Speaker)
				break
			}
		}
		entries = append(entries, Entry{
			Speaker: speaker,
			Start:   seg.Start,
			End:     seg.End,
			Text:    strings.TrimSpace(seg.Text),
		})
	}
	return entries, nil
}

// checkOrdered enforces the output contract: entries ordered by start time
// ascending. A violation means a core bug (for example a recognizer feeding
// non-monotonic whole-file segments), and fails loudly rather than returning
// a silently-corrupt transcript.
func checkOrdered(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Start < entries[i-1].Start {
			return &InvariantError{Reason: fmt.Sprintf("entry %d starts at %v before entry %d at %v", i, entries[i].Start, i-1, entries[i-1].Start)}
		}
	}
	return nil
}
