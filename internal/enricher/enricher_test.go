package enricher

import (
	"context"
	"errors"
	"testing"

	"github.com/MimeLyc/video-sections/internal/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Summarize(ctx context.Context, content, title string) (string, error) {
	args := m.Called(ctx, content, title)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) GenerateTitle(ctx context.Context, content string, index, total int) (string, error) {
	args := m.Called(ctx, content, index, total)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) GenerateQuestions(ctx context.Context, content, title string) (string, error) {
	args := m.Called(ctx, content, title)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) GenerateQuiz(ctx context.Context, content, title string) (string, error) {
	args := m.Called(ctx, content, title)
	return args.String(0), args.Error(1)
}

var errUpstream = errors.New("upstream timeout")

func TestEnrich_FullMaterial(t *testing.T) {
	gen := &mockGenerator{}
	sec := section.Section{Index: 1, Start: 60, End: 120, Content: "hematoma forms after the fracture"}

	gen.On("GenerateTitle", mock.Anything, sec.Content, 1, 5).Return(`"Hematoma Formation."`, nil)
	gen.On("Summarize", mock.Anything, sec.Content, "Hematoma Formation").Return("SUMMARY: A clot forms.", nil)
	gen.On("GenerateQuestions", mock.Anything, sec.Content, "Hematoma Formation").
		Return("1. Why does a hematoma form first?\n2. How long does the clot persist?\n3. What cells arrive next at the site?", nil)
	gen.On("GenerateQuiz", mock.Anything, sec.Content, "Hematoma Formation").
		Return(goodBlock+"\n---\n"+goodBlock+"\n---\n"+goodBlock, nil)

	out := New(gen).Enrich(context.Background(), sec, Options{Questions: true, Quiz: true, Total: 5})
	gen.AssertExpectations(t)

	assert.Equal(t, sec.Start, out.Start)
	assert.Equal(t, "Hematoma Formation", out.Title)
	assert.Equal(t, "A clot forms.", out.Summary)
	assert.Len(t, out.Questions, 3)
	require.Len(t, out.Quiz, 3)
	assert.Equal(t, "B", out.Quiz[0].Correct)
}

func TestEnrich_KeepsExistingTitleAndSkipsOptional(t *testing.T) {
	gen := &mockGenerator{}
	sec := section.Section{Index: 0, Title: "Intro", Content: "welcome"}
	gen.On("Summarize", mock.Anything, "welcome", "Intro").Return("Welcome.", nil)

	out := New(gen).Enrich(context.Background(), sec, Options{})
	gen.AssertExpectations(t)
	gen.AssertNotCalled(t, "GenerateTitle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gen.AssertNotCalled(t, "GenerateQuiz", mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, "Intro", out.Title)
	assert.Nil(t, out.Questions)
	assert.Nil(t, out.Quiz)
}

func TestEnrich_CollaboratorFailuresDegrade(t *testing.T) {
	gen := &mockGenerator{}
	sec := section.Section{Index: 2, Content: "one two three four"}
	gen.On("GenerateTitle", mock.Anything, mock.Anything, 2, 0).Return("", errUpstream)
	gen.On("Summarize", mock.Anything, mock.Anything, "Section 3").Return("", errUpstream)
	gen.On("GenerateQuestions", mock.Anything, mock.Anything, "Section 3").Return("", errUpstream)
	gen.On("GenerateQuiz", mock.Anything, mock.Anything, "Section 3").Return("", errUpstream)

	out := New(gen).Enrich(context.Background(), sec, Options{Questions: true, Quiz: true})

	assert.Equal(t, "Section 3", out.Title)
	assert.Equal(t, "one two three four", out.Summary)
	assert.Equal(t, []string{
		"Can you explain the reasoning behind this?",
		"What's the fundamental difference here?",
		"Why is this approach used instead of alternatives?",
	}, out.Questions)
	require.Len(t, out.Quiz, 3)
	for _, item := range out.Quiz {
		assert.Equal(t, "What is the key concept?", item.Question)
		assert.Equal(t, [4]string{"Concept A", "Concept B", "Concept C", "Concept D"}, item.Options)
		assert.Equal(t, "C", item.Correct)
	}
}

func TestQuiz_MalformedBlocksUseTitlePlaceholder(t *testing.T) {
	gen := &mockGenerator{}
	malformed := "Q: Broken block?\nA) only\nB) two options"
	gen.On("GenerateQuiz", mock.Anything, mock.Anything, "Bone Healing").
		Return(goodBlock+"\n---\n"+goodBlock+"\n---\n"+malformed, nil)

	quiz := New(gen).Quiz(context.Background(), "content", "Bone Healing")
	require.Len(t, quiz, 3, "never two items")
	for _, item := range quiz {
		assert.Equal(t, "What is discussed in Bone Healing?", item.Question)
		assert.Equal(t, [4]string{"Bone Healing", "Other topic", "Different concept", "Unrelated"}, item.Options)
		assert.Equal(t, "A", item.Correct)
		assert.Equal(t, "This section focuses on Bone Healing.", item.Explanation)
	}
}

func TestQuestions_PadsWithFillers(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateQuestions", mock.Anything, mock.Anything, mock.Anything).
		Return("1. Why is the callus soft at first?\nok", nil)

	qs := New(gen).Questions(context.Background(), "c", "t")
	assert.Equal(t, []string{
		"Why is the callus soft at first?",
		"How does this concept connect to the bigger picture?",
		"What's the key difference between the approaches mentioned?",
	}, qs)
}

func TestEnrich_EmptyResponsesDegrade(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateTitle", mock.Anything, mock.Anything, 0, 0).Return(`""`, nil)
	gen.On("Summarize", mock.Anything, mock.Anything, "Section 1").Return("SUMMARY:", nil)

	out := New(gen).Enrich(context.Background(), section.Section{Content: "alpha beta"}, Options{})
	assert.Equal(t, "Section 1", out.Title)
	assert.Equal(t, "alpha beta", out.Summary)
}

func TestOnDemand(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateQuestions", mock.Anything, "content", "Topic").
		Return("What is the first idea here?\nWhy does the second idea matter?\nHow do both ideas combine?", nil)
	gen.On("GenerateQuiz", mock.Anything, "content", "Topic").Return("garbage", nil)

	questions, quiz := New(gen).OnDemand(context.Background(), "content", "Topic")
	assert.Len(t, questions, 3)
	require.Len(t, quiz, 3)
	assert.Equal(t, "What is discussed in Topic?", quiz[0].Question)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b", excerpt(" a  b ", 3))
	assert.Equal(t, "a b...", excerpt("a b c d", 2))
}
