// Package locator finds where an approximate boundary phrase occurs in a transcript.
package locator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MimeLyc/video-sections/internal/transcript"
)

type Source string

const (
	Matched  Source = "matched"
	Fallback Source = "fallback"
)

const (
	DefaultWindow    = 4
	DefaultThreshold = 0.5
	// ExactScore is the score forced when the whole phrase occurs verbatim in a window.
	ExactScore = 1.0

	maxWindow = 16
)

// Resolution is the outcome of locating one phrase.
// Timestamp is only meaningful when Source is Matched.
type Resolution struct {
	Timestamp  int     `json:"timestamp"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	Index      int     `json:"index"`
}

type Config struct {
	Window    int
	Threshold float64
}

func (c Config) Validate() error {
	if c.Window < 1 || c.Window > maxWindow {
		return fmt.Errorf("search window must be in [1, %d], got %d", maxWindow, c.Window)
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("match threshold must be in (0, 1], got %v", c.Threshold)
	}
	return nil
}

type Locator struct {
	cfg Config
}

// New returns a Locator; zero fields of cfg take the defaults.
func New(cfg Config) (*Locator, error) {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Locator{cfg: cfg}, nil
}

// Default is a Locator with the default window and threshold.
func Default() *Locator {
	return &Locator{cfg: Config{Window: DefaultWindow, Threshold: DefaultThreshold}}
}

func (l *Locator) Config() Config { return l.cfg }

// Tokens lower-cases phrase and keeps the words longer than two characters.
func Tokens(phrase string) []string {
	words := strings.Fields(strings.ToLower(phrase))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// Locate scans every window start in order and keeps the first window with
// the highest score.
func (l *Locator) Locate(phrase string, store *transcript.Store) Resolution {
	tokens := Tokens(phrase)
	if len(tokens) == 0 || store.Len() == 0 {
		return Resolution{Source: Fallback, Index: -1}
	}
	exact := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")

	bestScore := 0.0
	bestIndex := -1
	for i := 0; i < store.Len(); i++ {
		window := store.WindowText(i, l.cfg.Window)

		present := 0
		for _, tok := range tokens {
			if strings.Contains(window, tok) {
				present++
			}
		}
		score := float64(present) / float64(len(tokens))
		if strings.Contains(window, exact) && score < ExactScore {
			score = ExactScore
		}

		if score > bestScore {
			bestScore, bestIndex = score, i
		}
	}

	if bestIndex < 0 || bestScore < l.cfg.Threshold {
		return Resolution{Source: Fallback, Confidence: bestScore, Index: bestIndex}
	}
	return Resolution{
		Timestamp:  int(store.At(bestIndex).Start),
		Confidence: bestScore,
		Source:     Matched,
		Index:      bestIndex,
	}
}
