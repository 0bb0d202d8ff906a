// Package textgen implements the planner and enricher collaborators on top
// of the chat-completions client.
package textgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/video-sections/internal/enricher"
	"github.com/MimeLyc/video-sections/internal/llm"
	"github.com/MimeLyc/video-sections/internal/planner"
)

var (
	_ planner.Proposer   = (*Generator)(nil)
	_ enricher.Generator = (*Generator)(nil)
)

// Completer is the slice of *llm.Client used here.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts *llm.ChatCompletionOptions) (string, error)
}

// Generator talks to the LLM for boundary proposals and section material.
type Generator struct {
	llm Completer
}

func New(c Completer) *Generator {
	return &Generator{llm: c}
}

func (g *Generator) ask(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (string, error) {
	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(system).
		WithTemperature(temperature).
		WithMaxTokens(maxTokens)
	out, err := g.llm.Complete(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ProposeBoundaries implements planner.Proposer.
func (g *Generator) ProposeBoundaries(ctx context.Context, transcriptText string, minutes, targetCount int) ([]planner.Proposal, error) {
	out, err := g.ask(ctx,
		fmt.Sprintf(boundarySystemPrompt, targetCount),
		boundaryUserPrompt(transcriptText, minutes, targetCount),
		0.3, 2000)
	if err != nil {
		return nil, fmt.Errorf("propose boundaries: %w", err)
	}
	return parseProposals(out)
}

func (g *Generator) Summarize(ctx context.Context, content, title string) (string, error) {
	return g.ask(ctx, summarySystemPrompt, summaryPrompt(content, title), 0.5, 120)
}

func (g *Generator) GenerateTitle(ctx context.Context, content string, index, total int) (string, error) {
	return g.ask(ctx, titleSystemPrompt, titlePrompt(content, index, total), 0.6, 25)
}

func (g *Generator) GenerateQuestions(ctx context.Context, content, title string) (string, error) {
	return g.ask(ctx, questionsSystemPrompt, questionsPrompt(content, title), 0.7, 200)
}

func (g *Generator) GenerateQuiz(ctx context.Context, content, title string) (string, error) {
	return g.ask(ctx, quizSystemPrompt, quizPrompt(content, title), 0.7, 1000)
}
