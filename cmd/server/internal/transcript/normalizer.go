package transcript

import "strconv"

// LabelTable maps raw diarization speaker tags to stable display labels in
// strict order of first encounter: the first distinct tag becomes
// "Speaker 1", the second "Speaker 2", and so on. The table is local to one
// alignment pass and is never shared across requests.
//
// Two passes over the same audio may assign different numbers to the same
// underlying voice when traversal order differs; raw diarization tags are
// themselves not stable across runs, so this is accepted rather than fixed.
type LabelTable struct {
	labels map[string]string
	next   int
}

// NewLabelTable creates an empty label table for one alignment pass.
func NewLabelTable() *LabelTable {
	return &LabelTable{labels: make(map[string]string), next: 1}
}

// Normalize returns the display label for tag, assigning the next sequential
// label on first sight. The same tag always maps to the same label within
// one table's lifetime.
func (t *LabelTable) Normalize(tag string) string {
	if label, ok := t.labels[tag]; ok {
		return label
	}
	label := "Speaker " + strconv.Itoa(t.next)
	t.labels[tag] = label
	t.next++
	return label
}

// Len reports how many distinct tags have been assigned labels.
func (t *LabelTable) Len() int {
	return len(t.labels)
}
