package textgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/video-sections/internal/planner"
)

// rawProposal accepts either key the model tends to use for the boundary quote.
type rawProposal struct {
	Title          string `json:"title"`
	FirstSentence  string `json:"first_sentence"`
	BoundaryPhrase string `json:"boundary_phrase"`
}

// parseProposals reads the JSON array of proposals from a model response.
// It tries the whole text, then a fenced code block, then the outermost
// balanced [...] in the text.
func parseProposals(content string) ([]planner.Proposal, error) {
	content = strings.TrimSpace(content)

	var raw []rawProposal
	if err := json.Unmarshal([]byte(content), &raw); err == nil {
		return toProposals(raw)
	}

	if idx := strings.Index(content, "```"); idx >= 0 {
		inner := content[idx+3:]
		// skip a language tag such as ```json
		if nl := strings.Index(inner, "\n"); nl >= 0 {
			inner = inner[nl+1:]
		}
		if end := strings.Index(inner, "```"); end >= 0 {
			inner = inner[:end]
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(inner)), &raw); err == nil {
			return toProposals(raw)
		}
	}

	if extracted := extractJSONArray(content); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &raw); err == nil {
			return toProposals(raw)
		}
	}

	return nil, fmt.Errorf("failed to parse boundary proposals: no valid JSON array found")
}

func toProposals(raw []rawProposal) ([]planner.Proposal, error) {
	out := make([]planner.Proposal, 0, len(raw))
	for _, r := range raw {
		phrase := strings.TrimSpace(r.FirstSentence)
		if phrase == "" {
			phrase = strings.TrimSpace(r.BoundaryPhrase)
		}
		out = append(out, planner.Proposal{Title: strings.TrimSpace(r.Title), Phrase: phrase})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("boundary proposal array is empty")
	}
	return out, nil
}

// extractJSONArray finds the outermost balanced [ ... ] block in s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
