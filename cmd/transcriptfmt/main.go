// transcriptfmt converts a saved transcription response into readable
// formats: plain text, SRT, WebVTT, or compact JSON. Consecutive entries
// from the same speaker can be merged into single blocks.
//
// Usage:
//
//	transcriptfmt -input transcript.json [-format text|json|srt|vtt] [-merge]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry mirrors one element of the transcribe response's segments array.
type Entry struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Transcript is the transcribe response subset this tool consumes.
type Transcript struct {
	Status   string  `json:"status"`
	Language string  `json:"language,omitempty"`
	Segments []Entry `json:"segments"`
}

func main() {
	var inputFile string
	var format string
	var merge bool
	flag.Usage = func() {
		exe := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s -input <transcript.json> [-format text|json|srt|vtt] [-merge]\n\n", exe)
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
	}
	flag.StringVar(&inputFile, "input", "", "Path to a saved transcribe response (JSON)")
	flag.StringVar(&format, "format", "text", "Output format: text|json|srt|vtt")
	flag.BoolVar(&merge, "merge", false, "Merge consecutive entries from the same speaker")
	flag.Parse()

	if inputFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !validFormat(format) {
		fmt.Fprintln(os.Stderr, "invalid -format:", format)
		flag.Usage()
		os.Exit(2)
	}

	transcript, err := readTranscript(inputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read transcript:", err)
		os.Exit(1)
	}

	entries := transcript.Segments
	if merge {
		entries = MergeBySpeaker(entries)
	}

	if err := writeEntries(os.Stdout, format, entries); err != nil {
		fmt.Fprintln(os.Stderr, "write output:", err)
		os.Exit(1)
	}
}

func validFormat(f string) bool {
	switch f {
	case "text", "json", "srt", "vtt":
		return true
	default:
		return false
	}
}

func readTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// MergeBySpeaker collapses runs of consecutive entries sharing a speaker
// into one block spanning first start to last end, texts joined by a space.
// Empty texts are skipped when joining but do not break a run.
func MergeBySpeaker(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}

	merged := make([]Entry, 0, len(entries))
	current := entries[0]
	for _, e := range entries[1:] {
		if e.Speaker == current.Speaker {
			current.End = e.End
			current.Text = joinTexts(current.Text, e.Text)
			continue
		}
		merged = append(merged, current)
		current = e
	}
	return append(merged, current)
}

func joinTexts(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func writeEntries(w io.Writer, format string, entries []Entry) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "srt":
		for i, e := range entries {
			writeEntrySrt(w, i, e)
		}
	case "vtt":
		fmt.Fprintln(w, "WEBVTT")
		fmt.Fprintln(w)
		for _, e := range entries {
			writeEntryVtt(w, e)
		}
	default:
		for _, e := range entries {
			writeEntryText(w, e)
		}
	}
	return nil
}

// writeEntryText writes "[HH:MM:SS.mmm --> HH:MM:SS.mmm] [Speaker] Text".
func writeEntryText(w io.Writer, e Entry) {
	fmt.Fprintf(w, "[%s --> %s] [%s] %s\n",
		formatTimestamp(e.Start, "."), formatTimestamp(e.End, "."), e.Speaker, e.Text)
}

func writeEntrySrt(w io.Writer, index int, e Entry) {
	fmt.Fprintf(w, "%d\n", index+1)
	fmt.Fprintf(w, "%s --> %s\n", formatTimestamp(e.Start, ","), formatTimestamp(e.End, ","))
	fmt.Fprintf(w, "[%s] %s\n\n", e.Speaker, e.Text)
}

func writeEntryVtt(w io.Writer, e Entry) {
	fmt.Fprintf(w, "%s --> %s\n", formatTimestamp(e.Start, "."), formatTimestamp(e.End, "."))
	fmt.Fprintf(w, "<v %s>%s\n\n", e.Speaker, e.Text)
}

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm. SRT uses a comma
// before the milliseconds, text and WebVTT use a dot.
func formatTimestamp(seconds float64, sep string) string {
	d := time.Duration(seconds * float64(time.Second))
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}
