// Package tutor answers student questions about a section and grades quiz answers.
package tutor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/video-sections/internal/enricher"
	"github.com/MimeLyc/video-sections/internal/llm"
	"github.com/MimeLyc/video-sections/internal/section"
	"github.com/MimeLyc/video-sections/pkg/log"
)

const (
	followUpCount   = 3
	followUpFiller  = "Can you elaborate?"
	maxHistory      = 50
	sectionPrefix   = "Section: "
	contentPrefix   = "Content: "
	contextSplitter = "\n\n"
)

const answerPrompt = `You are an educational assistant helping students understand video content. Provide brief, clear answers that help students grasp essential concepts for their studies and exams.

REQUIREMENTS:
- Keep answers BRIEF (2-4 sentences max)
- Focus on essential information
- Use clear, simple language
- Include mechanisms, differences, or practical relevance when appropriate
- Be direct and helpful`

const followUpPrompt = "Generate 3 follow-up questions that build on the conversation. Format: one per line, numbered 1-3."

const judgePrompt = "Evaluate if student answer is correct. Answer YES or NO only."

// Material generates fresh questions and quiz items for a section.
// *enricher.Enricher satisfies it.
type Material interface {
	OnDemand(ctx context.Context, content, title string) ([]string, []section.QuizItem)
}

type Tutor struct {
	client   *llm.Client
	material Material
}

func New(client *llm.Client, material Material) *Tutor {
	return &Tutor{client: client, material: material}
}

type Answer struct {
	Answer    string   `json:"answer"`
	FollowUps []string `json:"follow_up_questions"`
}

// Ask answers question in the context of one section, replaying the prior
// user and assistant turns. Follow-up generation failures are padded, answer
// failures are returned.
func (t *Tutor) Ask(ctx context.Context, sectionContext, question string, history []llm.Message) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	system := answerPrompt + "\n\nSection content:\n" + sectionContext
	conv := llm.NewConversationFromMessages(t.client, system, dialogueOnly(history), maxHistory)

	opts := llm.NewChatCompletionOptions().WithTemperature(0.7).WithMaxTokens(150)
	reply, err := conv.SendMessage(ctx, question, opts)
	if err != nil {
		return nil, fmt.Errorf("tutor answer: %w", err)
	}
	answer := strings.TrimSpace(reply)

	return &Answer{
		Answer:    answer,
		FollowUps: t.followUps(ctx, question, answer),
	}, nil
}

func (t *Tutor) followUps(ctx context.Context, question, answer string) []string {
	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(followUpPrompt).
		WithTemperature(0.7).
		WithMaxTokens(200)
	prompt := fmt.Sprintf("Q: %s\nA: %s\n\nGenerate 3 follow-up questions.", question, answer)

	raw, err := t.client.Complete(ctx, prompt, opts)
	if err != nil {
		log.Warn("Follow-up questions unavailable: %v", err)
	}
	questions, _ := enricher.ParseQuestions(raw)
	for len(questions) < followUpCount {
		questions = append(questions, followUpFiller)
	}
	return questions
}

// dialogueOnly drops system turns and blank messages from client supplied history.
func dialogueOnly(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

type AnswerRequest struct {
	SectionContext string `json:"section_context"`
	Question       string `json:"question"`
	UserAnswer     string `json:"user_answer"`
	CorrectAnswer  string `json:"correct_answer"`
	Explanation    string `json:"explanation"`
}

type Verdict struct {
	IsCorrect    bool               `json:"is_correct"`
	Feedback     string             `json:"feedback"`
	NewQuestions []string           `json:"new_user_questions"`
	NewQuiz      []section.QuizItem `json:"new_quiz_questions"`
}

// Validate grades an answer and returns fresh material for the same section.
// Single letters are compared directly; longer answers are judged by the LLM.
func (t *Tutor) Validate(ctx context.Context, req AnswerRequest) (*Verdict, error) {
	answer := strings.TrimSpace(req.UserAnswer)
	if answer == "" {
		return nil, fmt.Errorf("user answer is required")
	}

	title, content := SplitContext(req.SectionContext)
	verdict := &Verdict{
		IsCorrect: strings.EqualFold(answer, strings.TrimSpace(req.CorrectAnswer)),
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(answer) > 1 {
		g.Go(func() error {
			if ok, err := t.judge(gctx, req); err != nil {
				log.Warn("Answer judging failed, using letter comparison: %v", err)
			} else {
				verdict.IsCorrect = ok
			}
			return nil
		})
	}
	g.Go(func() error {
		verdict.NewQuestions, verdict.NewQuiz = t.material.OnDemand(gctx, content, title)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if verdict.IsCorrect {
		verdict.Feedback = "Correct! " + req.Explanation
	} else {
		verdict.Feedback = fmt.Sprintf("Not quite. The correct answer is %s. %s", req.CorrectAnswer, req.Explanation)
	}
	return verdict, nil
}

func (t *Tutor) judge(ctx context.Context, req AnswerRequest) (bool, error) {
	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(judgePrompt).
		WithTemperature(0.3).
		WithMaxTokens(10)
	prompt := fmt.Sprintf("Question: %s\nCorrect: %s\nStudent: %s\n\nCorrect?", req.Question, req.Explanation, req.UserAnswer)

	raw, err := t.client.Complete(ctx, prompt, opts)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToUpper(raw), "YES"), nil
}

// SplitContext splits "Section: <title>\n\nContent: <content>". Without the
// separator the whole text is used for both.
func SplitContext(sectionContext string) (title, content string) {
	parts := strings.SplitN(sectionContext, contextSplitter, 2)
	title = strings.TrimSpace(strings.TrimPrefix(parts[0], sectionPrefix))
	if title == "" {
		title = "Section"
	}
	if len(parts) < 2 {
		return title, sectionContext
	}
	return title, strings.TrimSpace(strings.TrimPrefix(parts[1], contentPrefix))
}
