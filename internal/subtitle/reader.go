package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// both "," and "." are accepted as the millisecond separator; hours may have one digit
var srtTimeRe = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})`)

// ReadFile reads and parses an SRT file from disk
func ReadFile(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("subtitle file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// ParseBytes parses SRT content already held in memory
func ParseBytes(data []byte) (*File, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads SRT cues from r. Blocks without a parsable index are skipped.
func Parse(r io.Reader) (*File, error) {
	var lines []Line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	currentLine := Line{}
	state := "index" // index, time, text
	var textLines []string

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		switch state {
		case "index":
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			currentLine.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			startTime, endTime, err := parseSRTTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time of cue %d: %w", currentLine.Index, err)
			}
			currentLine.StartTime = startTime
			currentLine.EndTime = endTime
			state = "text"
			textLines = textLines[:0]

		case "text":
			if line == "" {
				if len(textLines) > 0 {
					currentLine.Text = strings.Join(textLines, "\n")
					lines = append(lines, currentLine)
				}
				currentLine = Line{}
				state = "index"
				textLines = textLines[:0]
			} else {
				textLines = append(textLines, line)
			}
		}
	}

	if state == "text" && len(textLines) > 0 {
		currentLine.Text = strings.Join(textLines, "\n")
		lines = append(lines, currentLine)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	return &File{
		Lines:    lines,
		Language: DetectLanguage(texts(lines)),
		Format:   "SRT",
	}, nil
}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

// parseSRTTime parses "00:02:16,612 --> 00:02:19,376"
func parseSRTTime(timeString string) (time.Duration, time.Duration, error) {
	matches := srtTimeRe.FindStringSubmatch(timeString)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	parseTime := func(hours, minutes, seconds, milliseconds string) time.Duration {
		h, _ := strconv.Atoi(hours)
		m, _ := strconv.Atoi(minutes)
		s, _ := strconv.Atoi(seconds)
		ms, _ := strconv.Atoi(milliseconds)

		return time.Duration(h)*time.Hour +
			time.Duration(m)*time.Minute +
			time.Duration(s)*time.Second +
			time.Duration(ms)*time.Millisecond
	}

	startTime := parseTime(matches[1], matches[2], matches[3], matches[4])
	endTime := parseTime(matches[5], matches[6], matches[7], matches[8])
	if endTime < startTime {
		return 0, 0, fmt.Errorf("cue ends before it starts: %s", timeString)
	}

	return startTime, endTime, nil
}

// DetectLanguage votes whatlanggo's per-line guess and returns the most frequent
// language. Ties resolve to the lexically smallest ISO code so the result is stable.
func DetectLanguage(lines []string) language.Tag {
	votes := make(map[string]int)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		info := whatlanggo.Detect(line)
		code := info.Lang.Iso6391()
		if code == "" {
			continue
		}
		votes[code]++
	}
	if len(votes) == 0 {
		return language.Und
	}

	codes := make([]string, 0, len(votes))
	for code := range votes {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	top := codes[0]
	for _, code := range codes[1:] {
		if votes[code] > votes[top] {
			top = code
		}
	}

	tag, err := language.Parse(top)
	if err != nil {
		return language.Und
	}
	return tag
}
