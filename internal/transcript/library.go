package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MimeLyc/video-sections/internal/subtitle"
	"github.com/MimeLyc/video-sections/pkg/log"
	"golang.org/x/text/language"
)

// FileLibrary serves transcripts from a directory of caption tracks.
//
// Layout, for a video ID "abc":
//
//	abc.en.srt       manual track, language tagged
//	abc.en.auto.srt  generated track
//	abc.srt          untagged track, language detected from the text
//	abc.json         [{"text": "...", "start": 0.0, "duration": 1.5}, ...]
//	abc.disabled     marks transcripts as disabled for the video
//
// Tracks are preferred in this order: manual in a preferred language,
// generated in a preferred language, then any track at all.
type FileLibrary struct {
	dir       string
	preferred []language.Tag
}

// NewFileLibrary creates a library rooted at dir. An empty preferred list means English.
func NewFileLibrary(dir string, preferred []language.Tag) *FileLibrary {
	if len(preferred) == 0 {
		preferred = []language.Tag{language.English}
	}
	return &FileLibrary{dir: dir, preferred: preferred}
}

type track struct {
	path      string
	lang      language.Tag
	tagged    bool
	generated bool
}

// Fetch implements Source.
func (l *FileLibrary) Fetch(ctx context.Context, videoID string) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.ContainsAny(videoID, `/\`) || videoID == "" || strings.HasPrefix(videoID, ".") {
		return nil, unavailable(videoID, ReasonVideoUnavailable)
	}

	info, err := os.Stat(l.dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("transcript directory %s: %w", l.dir, err)
	}

	if _, err := os.Stat(filepath.Join(l.dir, videoID+".disabled")); err == nil {
		return nil, unavailable(videoID, ReasonDisabled)
	}

	tracks, err := l.tracks(videoID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, unavailable(videoID, ReasonNotFound)
	}

	segs, _, ok := l.chain(tracks).Resolve(ctx, videoID)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, unavailable(videoID, ReasonNotFound)
	}
	return segs, nil
}

func (l *FileLibrary) chain(tracks []track) Chain {
	return Chain{
		{Name: "manual", Find: l.preferredTrack(tracks, false)},
		{Name: "generated", Find: l.preferredTrack(tracks, true)},
		{Name: "any", Find: l.anyTrack(tracks)},
	}
}

func (l *FileLibrary) preferredTrack(tracks []track, generated bool) func(context.Context, string) ([]Segment, bool) {
	return func(_ context.Context, videoID string) ([]Segment, bool) {
		candidates := make([]track, 0)
		tags := make([]language.Tag, 0)
		for _, t := range tracks {
			if t.tagged && t.generated == generated {
				candidates = append(candidates, t)
				tags = append(tags, t.lang)
			}
		}
		if len(candidates) == 0 {
			return nil, false
		}

		matcher := language.NewMatcher(tags)
		_, idx, conf := matcher.Match(l.preferred...)
		if conf < language.High {
			return nil, false
		}
		return loadTrack(candidates[idx])
	}
}

func (l *FileLibrary) anyTrack(tracks []track) func(context.Context, string) ([]Segment, bool) {
	return func(_ context.Context, videoID string) ([]Segment, bool) {
		for _, t := range tracks {
			if segs, ok := loadTrack(t); ok {
				return segs, true
			}
		}
		return nil, false
	}
}

// tracks lists every track file for videoID, untagged tracks first then by name.
func (l *FileLibrary) tracks(videoID string) ([]track, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read transcript directory: %w", err)
	}

	out := make([]track, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, videoID+".") {
			continue
		}
		rest := strings.TrimPrefix(name, videoID+".")
		ext := strings.ToLower(filepath.Ext(rest))
		if ext != ".srt" && ext != ".json" {
			continue
		}

		t := track{path: filepath.Join(l.dir, name)}
		stem := strings.TrimSuffix(rest, filepath.Ext(rest))
		if strings.HasSuffix(stem, ".auto") {
			t.generated = true
			stem = strings.TrimSuffix(stem, ".auto")
		}
		if stem != "" {
			tag, err := language.Parse(stem)
			if err != nil {
				log.Warn("Skipping track %s with unknown language %q", name, stem)
				continue
			}
			t.lang, t.tagged = tag, true
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].tagged != out[j].tagged {
			return !out[i].tagged
		}
		return out[i].path < out[j].path
	})
	return out, nil
}

func loadTrack(t track) ([]Segment, bool) {
	var (
		segs []Segment
		err  error
	)
	if strings.EqualFold(filepath.Ext(t.path), ".json") {
		segs, err = readJSONTrack(t.path)
	} else {
		segs, err = readSRTTrack(t.path)
	}
	if err != nil {
		log.Warn("Failed to load transcript track %s: %v", t.path, err)
		return nil, false
	}
	if len(segs) == 0 {
		return nil, false
	}
	return segs, true
}

func readSRTTrack(path string) ([]Segment, error) {
	file, err := subtitle.ReadFile(path)
	if err != nil {
		return nil, err
	}
	segs := make([]Segment, 0, len(file.Lines))
	for _, line := range file.Lines {
		segs = append(segs, Segment{
			Text:     strings.Join(strings.Fields(line.Text), " "),
			Start:    line.StartTime.Seconds(),
			Duration: (line.EndTime - line.StartTime).Seconds(),
		})
	}
	return segs, nil
}

func readJSONTrack(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var segs []Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return segs, nil
}
