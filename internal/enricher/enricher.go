// Package enricher adds summaries, titles, open questions and quizzes to
// planned sections. Collaborator failures never escape: every output has a
// deterministic fallback.
package enricher

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/video-sections/internal/section"
	"github.com/MimeLyc/video-sections/pkg/log"
	"golang.org/x/sync/errgroup"
)

// Generator is the text-generation collaborator. Every method returns the
// raw model text; parsing happens here.
type Generator interface {
	Summarize(ctx context.Context, content, title string) (string, error)
	GenerateTitle(ctx context.Context, content string, index, total int) (string, error)
	GenerateQuestions(ctx context.Context, content, title string) (string, error)
	GenerateQuiz(ctx context.Context, content, title string) (string, error)
}

// Options selects the optional material for one section.
// Total is the number of sections in the plan and only feeds the title prompt.
type Options struct {
	Questions bool
	Quiz      bool
	Total     int
}

// summaryFallbackWords bounds the content excerpt used when no summary can be generated
const summaryFallbackWords = 40

var (
	fillerQuestions = [itemsPerSection]string{
		"Why does this work the way it does?",
		"How does this concept connect to the bigger picture?",
		"What's the key difference between the approaches mentioned?",
	}
	unavailableQuestions = [itemsPerSection]string{
		"Can you explain the reasoning behind this?",
		"What's the fundamental difference here?",
		"Why is this approach used instead of alternatives?",
	}
)

type Enricher struct {
	gen Generator
}

func New(gen Generator) *Enricher {
	return &Enricher{gen: gen}
}

// Enrich builds the EnrichedSection for sec. It always returns a complete
// value; ctx cancellation only shortens the collaborator calls.
func (e *Enricher) Enrich(ctx context.Context, sec section.Section, opts Options) section.EnrichedSection {
	out := section.EnrichedSection{Section: sec}

	if strings.TrimSpace(out.Title) == "" {
		out.Title = e.title(ctx, sec, opts.Total)
	}
	out.Summary = e.summary(ctx, sec.Content, out.Title)

	if opts.Questions {
		out.Questions = e.Questions(ctx, sec.Content, out.Title)
	}
	if opts.Quiz {
		out.Quiz = e.Quiz(ctx, sec.Content, out.Title)
	}
	return out
}

// OnDemand produces questions and quiz for content outside a planning run.
func (e *Enricher) OnDemand(ctx context.Context, content, title string) ([]string, []section.QuizItem) {
	var (
		questions []string
		quiz      []section.QuizItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		questions = e.Questions(gctx, content, title)
		return nil
	})
	g.Go(func() error {
		quiz = e.Quiz(gctx, content, title)
		return nil
	})
	_ = g.Wait()
	return questions, quiz
}

func (e *Enricher) title(ctx context.Context, sec section.Section, total int) string {
	raw, err := e.gen.GenerateTitle(ctx, sec.Content, sec.Index, total)
	if err != nil {
		log.Warn("Section %d: title generation failed: %v", sec.Index+1, err)
		return section.DisplayTitle(sec)
	}
	title := CleanTitle(raw)
	if title == "" {
		return section.DisplayTitle(sec)
	}
	return title
}

func (e *Enricher) summary(ctx context.Context, content, title string) string {
	raw, err := e.gen.Summarize(ctx, content, title)
	if err == nil {
		if s := CleanSummary(raw); s != "" {
			return s
		}
		err = fmt.Errorf("%w: empty summary", ErrParse)
	}
	log.Warn("Summary for %q degraded: %v", title, err)
	return excerpt(content, summaryFallbackWords)
}

// Questions returns exactly three open questions.
func (e *Enricher) Questions(ctx context.Context, content, title string) []string {
	raw, err := e.gen.GenerateQuestions(ctx, content, title)
	if err != nil {
		log.Warn("Questions for %q unavailable: %v", title, err)
		return append([]string(nil), unavailableQuestions[:]...)
	}

	questions, err := ParseQuestions(raw)
	if err != nil {
		log.Debug("Padding questions for %q: %v", title, err)
		for len(questions) < itemsPerSection {
			questions = append(questions, fillerQuestions[len(questions)])
		}
	}
	return questions
}

// Quiz returns exactly three quiz items, placeholders included.
func (e *Enricher) Quiz(ctx context.Context, content, title string) []section.QuizItem {
	raw, err := e.gen.GenerateQuiz(ctx, content, title)
	if err != nil {
		log.Warn("Quiz for %q unavailable: %v", title, err)
		return repeat(genericPlaceholder())
	}

	items, err := ParseQuiz(raw)
	if err != nil {
		log.Warn("Quiz for %q degraded: %v", title, err)
		return repeat(titlePlaceholder(title))
	}
	return items
}

func titlePlaceholder(title string) section.QuizItem {
	return section.QuizItem{
		Question:    fmt.Sprintf("What is discussed in %s?", title),
		Options:     [4]string{title, "Other topic", "Different concept", "Unrelated"},
		Correct:     "A",
		Explanation: fmt.Sprintf("This section focuses on %s.", title),
	}
}

func genericPlaceholder() section.QuizItem {
	return section.QuizItem{
		Question:    "What is the key concept?",
		Options:     [4]string{"Concept A", "Concept B", "Concept C", "Concept D"},
		Correct:     "C",
		Explanation: "Based on content.",
	}
}

func repeat(item section.QuizItem) []section.QuizItem {
	out := make([]section.QuizItem, itemsPerSection)
	for i := range out {
		out[i] = item
	}
	return out
}

func excerpt(content string, words int) string {
	fields := strings.Fields(content)
	if len(fields) <= words {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:words], " ") + "..."
}
