package enricher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MimeLyc/video-sections/internal/section"
)

// ErrParse is wrapped by every parser failure
var ErrParse = errors.New("unparseable collaborator output")

const itemsPerSection = 3

var (
	labelPrefixRe  = regexp.MustCompile(`(?i)^(TITLE|SUMMARY|HEADER|CONCEPT):\s*`)
	enumerationRe  = regexp.MustCompile(`^\d+[.)]\s*`)
	optionLineRe   = regexp.MustCompile(`^([A-D])\)\s*(.*)$`)
	correctLineRe  = regexp.MustCompile(`(?i)^CORRECT:\s*([A-D])`)
	explanationRe  = regexp.MustCompile(`(?i)^EXPLANATION:\s*(.*)$`)
	questionLineRe = regexp.MustCompile(`^Q:\s*(.*)$`)
)

// CleanSummary trims whitespace and one leading label such as "SUMMARY:".
func CleanSummary(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(labelPrefixRe.ReplaceAllString(s, ""))
}

// CleanTitle strips surrounding quotes and trailing periods.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimRight(s, ".")
	return strings.TrimSpace(s)
}

// ParseQuestions extracts open questions, one per line. The surviving lines
// are returned even on error so callers can pad them.
func ParseQuestions(text string) ([]string, error) {
	questions := make([]string, 0, itemsPerSection)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = enumerationRe.ReplaceAllString(line, "")
		line = strings.Trim(line, `"'`)
		if utf8.RuneCountInString(line) <= 10 {
			continue
		}
		questions = append(questions, line)
		if len(questions) == itemsPerSection {
			return questions, nil
		}
	}
	return questions, fmt.Errorf("%w: %d of %d questions", ErrParse, len(questions), itemsPerSection)
}

// ParseQuiz reads "---" separated blocks of the form
//
//	Q: question
//	A) option
//	B) option
//	C) option
//	D) option
//	CORRECT: B
//	EXPLANATION: text
//
// A block counts only with a question and all four options. CORRECT defaults
// to A. Fewer than three valid blocks is an error.
func ParseQuiz(text string) ([]section.QuizItem, error) {
	items := make([]section.QuizItem, 0, itemsPerSection)
	for _, block := range strings.Split(text, "---") {
		item, ok := parseQuizBlock(block)
		if !ok {
			continue
		}
		items = append(items, item)
		if len(items) == itemsPerSection {
			return items, nil
		}
	}
	return nil, fmt.Errorf("%w: %d of %d quiz blocks", ErrParse, len(items), itemsPerSection)
}

type quizField int

const (
	fieldNone quizField = iota
	fieldQuestion
	fieldOption
	fieldExplanation
)

func parseQuizBlock(block string) (section.QuizItem, bool) {
	var question, explanation []string
	var options [4][]string
	var seen [4]bool
	correct := "A"
	field, option := fieldNone, -1

	for _, raw := range strings.Split(strings.TrimSpace(block), "\n") {
		line := strings.TrimSpace(raw)

		if m := questionLineRe.FindStringSubmatch(line); m != nil && len(question) == 0 {
			question = append(question, m[1])
			field = fieldQuestion
			continue
		}
		if m := optionLineRe.FindStringSubmatch(line); m != nil {
			idx := section.LetterIndex(m[1])
			if seen[idx] {
				// a repeated letter belongs to nobody
				field = fieldNone
				continue
			}
			seen[idx] = true
			options[idx] = append(options[idx], m[2])
			field, option = fieldOption, idx
			continue
		}
		if m := correctLineRe.FindStringSubmatch(line); m != nil {
			correct = strings.ToUpper(m[1])
			field = fieldNone
			continue
		}
		if m := explanationRe.FindStringSubmatch(line); m != nil {
			explanation = append(explanation, m[1])
			field = fieldExplanation
			continue
		}

		switch field {
		case fieldQuestion:
			question = append(question, line)
		case fieldOption:
			options[option] = append(options[option], line)
		case fieldExplanation:
			explanation = append(explanation, line)
		}
	}

	item := section.QuizItem{
		Question:    joinField(question),
		Correct:     correct,
		Explanation: joinField(explanation),
	}
	if item.Question == "" {
		return section.QuizItem{}, false
	}
	for i := range options {
		item.Options[i] = joinField(options[i])
		if item.Options[i] == "" {
			return section.QuizItem{}, false
		}
	}
	if item.Explanation == "" {
		item.Explanation = "This is the correct answer."
	}
	return item, true
}

func joinField(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
