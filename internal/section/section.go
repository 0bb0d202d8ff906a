// Package section holds the planned-section types shared by the planner,
// the enricher and the transports.
package section

import (
	"fmt"
	"strings"
)

// Section is a contiguous time range of the video.
// Start and End are whole seconds, End is exclusive.
type Section struct {
	Index   int    `json:"index"`
	Title   string `json:"title,omitempty"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Content string `json:"content"`
}

// QuizItem is one multiple choice question with exactly four options
type QuizItem struct {
	Question    string    `json:"question"`
	Options     [4]string `json:"options"`
	Correct     string    `json:"correct"` // A, B, C or D
	Explanation string    `json:"explanation"`
}

// EnrichedSection is a Section plus the generated study material
type EnrichedSection struct {
	Section
	Summary   string     `json:"summary"`
	Questions []string   `json:"questions,omitempty"`
	Quiz      []QuizItem `json:"quiz,omitempty"`
}

// Letters are the option labels in order
var Letters = [4]string{"A", "B", "C", "D"}

// LetterIndex returns the option position of letter, or -1.
func LetterIndex(letter string) int {
	for i, l := range Letters {
		if strings.EqualFold(strings.TrimSpace(letter), l) {
			return i
		}
	}
	return -1
}

// FormatTimestamp renders seconds as m:ss, or h:mm:ss past one hour.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// DisplayTitle is the title shown next to a section, falling back to "Section N".
func DisplayTitle(s Section) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return fmt.Sprintf("Section %d", s.Index+1)
}

// Range renders "start - end" with FormatTimestamp.
func (s Section) Range() string {
	return FormatTimestamp(s.Start) + " - " + FormatTimestamp(s.End)
}
