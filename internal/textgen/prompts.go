package textgen

import "fmt"

const boundarySystemPrompt = `You are dividing an educational video transcript into %[1]d logical sections.

TASK: Split the transcript into %[1]d coherent sections where each section covers a distinct topic or concept.

For each section, provide:
1. A descriptive TITLE (2-5 words)
2. The FIRST SENTENCE of that section (exact quote from transcript, 10-20 words)

OUTPUT FORMAT (strict JSON array):
[
  {"title": "Introduction", "first_sentence": "exact first sentence of this section from transcript"},
  {"title": "Main Concept", "first_sentence": "exact first sentence of this section from transcript"}
]

RULES:
- Return EXACTLY %[1]d sections
- first_sentence must be EXACT text from the transcript (it is used to find the timestamp)
- Titles should be descriptive, 2-5 words
- Sections should be roughly equal in length
- Break at natural topic transitions
- First section starts at the beginning of the transcript`

func boundaryUserPrompt(transcript string, minutes, target int) string {
	return fmt.Sprintf(`Divide this %d-minute transcript into exactly %d logical sections.

TRANSCRIPT:
%s

Return a JSON array with %d sections. Each needs "title" and "first_sentence" (exact quote).`, minutes, target, transcript, target)
}

const titleSystemPrompt = "Create natural, descriptive headers that flow well in sequence."

func titlePrompt(content string, index, total int) string {
	position := "This is a section"
	if total > 0 {
		position = fmt.Sprintf("This is section %d of %d", index+1, total)
	}
	return fmt.Sprintf(`%s from an educational video. Read the content and create a natural, descriptive header.

REQUIREMENTS:
- 2-4 words that flow naturally
- Should fit into a sequence with other sections
- Descriptive and specific (not generic)
- Think: if this were a textbook chapter, what would it be called?

Examples of BAD headers: "Section Overview", "Key Points", "Important Information", "Next Steps"

SECTION CONTENT:
%s

Return ONLY the header (2-4 words, no quotes, no explanation).`, position, content)
}

const summarySystemPrompt = "Create brief 30-40 word summaries for educational content."

func summaryPrompt(content, title string) string {
	return fmt.Sprintf(`Summarize this section in 30-40 words.

Topic: %s

Content:
%s

REQUIREMENTS:
- 30-40 words (2-3 sentences)
- Focus on essentials only
- Include key facts and mechanisms
- Be concise and complete

Write 30-40 words.`, title, content)
}

const questionsSystemPrompt = `You are an educational assistant helping students deeply understand video content for their studies and exam preparation. Generate 3 specific, probing questions that help students grasp the essentials.

QUESTION TYPES (use a mix):
- CLARITY: "What exactly does [concept] mean?"
- DEPTH: "Why does [X] happen?" "How does [X] actually work?"
- CONNECTIONS: "How does [X] relate to [Y]?" "What's the difference between [X] and [Y]?"
- IMPLICATIONS: "Why is [X] important?" "What happens if [X]?"

REQUIREMENTS:
- Questions must be SPECIFIC to the actual concepts and terms in the content
- Natural, conversational tone
- Each question should probe a different aspect
- 10-20 words per question

Format: Return ONLY 3 questions, one per line, numbered 1-3.`

func questionsPrompt(content, title string) string {
	return fmt.Sprintf(`Based on this section about "%s", generate 3 probing questions:

Section content:
%s

Ask WHY, HOW, WHAT'S THE DIFFERENCE, or seek CLARITY about specific concepts mentioned above.`, title, content)
}

const quizSystemPrompt = `You are creating quiz questions for students to test their understanding. Generate 3 multiple-choice questions that assess comprehension of key concepts.

CRITICAL: Generate questions ONLY from the actual content provided. DO NOT use generic placeholders.

ANSWER OPTIONS:
- Provide 4 plausible options (A, B, C, D)
- One correct answer based on the content
- Distractors should be plausible but clearly wrong

STRICT FORMAT (copy exactly):
Q: [Specific question about the content]
A) [Option]
B) [Option]
C) [Option]
D) [Option]
CORRECT: [A or B or C or D]
EXPLANATION: [Why this is correct based on the content]

---

[Next question with same format]`

func quizPrompt(content, title string) string {
	return fmt.Sprintf(`Section: "%s"

Content to create quiz questions from:
%s

Create 3 multiple-choice quiz questions that test understanding of THIS SPECIFIC CONTENT.`, title, content)
}
