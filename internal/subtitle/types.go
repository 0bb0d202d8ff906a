package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Line is a single timed cue
type Line struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// File is a parsed subtitle track
type File struct {
	Lines    []Line
	Language language.Tag // detected from the cue text, Und when unknown
	Format   string       // SRT
}
