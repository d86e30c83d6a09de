package content

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/muse/internal/curriculum"
)

func tutorIntro(subject, standard string) string {
	return fmt.Sprintf("You are a friendly %s tutor for %s students in India.", subject, standard)
}

func topicsPrompt(chapter, subject, standard string, style curriculum.SubjectStyle, existing []string) string {
	var b strings.Builder
	b.WriteString(tutorIntro(subject, standard))
	fmt.Fprintf(&b, ` For the chapter %q, list 7 to 10 important, distinct questions that are strictly within the NCERT syllabus for this chapter. Phrase each one as a short question.`, chapter)

	if style == curriculum.StyleProgramming {
		b.WriteString(` Where the chapter involves programming (syntax, data structures, algorithms), mix conceptual questions with questions about writing the code. For a chapter on Functions, both "What is a function?" and "How do you define a function in Python?" fit.`)
	}

	if len(existing) > 0 {
		b.WriteString("\n\nDo not repeat or closely paraphrase these questions:\n- ")
		b.WriteString(strings.Join(existing, "\n- "))
		b.WriteString("\n\nReturn an empty list if the chapter has no further important questions.")
	}
	return b.String()
}

func explanationPrompt(topic, chapter, subject, standard string, style curriculum.SubjectStyle) string {
	var b strings.Builder
	b.WriteString(tutorIntro(subject, standard))
	fmt.Fprintf(&b, "\nIn the chapter %q, explain the topic %q simply and briefly in English.\n\n", chapter, topic)
	b.WriteString(`RULES:
- Write 2 to 3 short paragraphs separated by a blank line.
- Use Markdown. Bold any subheadings, e.g. **Key Features**.
- Keep the language simple.`)

	switch style {
	case curriculum.StyleProgramming:
		b.WriteString(`
- If the topic is about syntax, a data structure or writing code, include one small code example in a fenced block such as ` + "```python" + `.
- If the topic is purely theoretical, include no code.`)
	case curriculum.StyleLifeScience:
		b.WriteString(`
- Describe processes step by step where it helps.
- For a structure (a cell, a flower), name its key parts and what each does.
- Never include code.`)
	}
	return b.String()
}

func visualPromptPrompt(topic, subject string, style curriculum.SubjectStyle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write prompts for an AI image generator. A student needs a visual aid for the %s topic %q.\n", subject, topic)
	b.WriteString(`Describe the key visual elements of a simple, accurate educational diagram for it.

RULES:
- English only.
- Describe the picture only; never start with "Generate" or "Create".
- Be concrete and name the parts that should carry labels.
- Stick to the core concept.
- One descriptive sentence or a short phrase.`)

	switch style {
	case curriculum.StyleLifeScience:
		b.WriteString(`
- Show structures, organisms or processes. For "The Human Heart": "A simplified diagram of the four chambers of the human heart, labelling the aorta, pulmonary artery, atria and ventricles, with blue arrows for deoxygenated blood and red arrows for oxygenated blood."`)
	case curriculum.StyleProgramming:
		b.WriteString(`
- Use a clear visual metaphor. For "Stack Data Structure": "A stack of plates; an arrow labelled 'Push' adds a plate on top and an arrow labelled 'Pop' removes the top plate."`)
	}
	return b.String()
}

func mcqPrompt(topic, subject string) string {
	return fmt.Sprintf(`Write exactly 4 distinct multiple-choice questions in English that test a student's understanding of the %s topic %q.
Each question has exactly 4 options and exactly one of them is correct. correctAnswer must repeat the correct option word for word.
Cover the key aspects of the topic.`, subject, topic)
}

func realWorldPrompt(topic, chapter, subject, standard string, style curriculum.SubjectStyle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You make hard topics relatable for %s %s students in India.\n", standard, subject)
	fmt.Fprintf(&b, "For the topic %q from the chapter %q, give one short, engaging real-world example of where it shows up.\n\n", topic, chapter)
	b.WriteString(`RULES:
- English only.
- 1 or 2 short paragraphs.
- Pick something a student meets in everyday life.
- Bold key terms with Markdown where useful.`)

	switch style {
	case curriculum.StyleProgramming:
		b.WriteString("\n- Relate the idea to social media apps, video games or online shopping.")
	case curriculum.StyleLifeScience:
		b.WriteString("\n- Connect the idea to medicine, agriculture or the environment.")
	}
	return b.String()
}

func unitTestPrompt(chapter, subject, standard string) string {
	return fmt.Sprintf(`You set question papers for %s students in %s. Write a unit test in English covering the whole chapter %q, not a single topic.

The test must have exactly:
- %d multiple-choice questions, each with %d options and one correct answer repeated word for word in correctAnswer.
- %d fill-in-the-blank questions, each marking the blank with "____".
- %d short-answer questions worth 2 marks each.
- %d medium-answer questions worth 3 marks each.
- %d long-answer questions worth 5 marks each.

Range from easy recall to application, at the student's level.`,
		subject, standard, chapter,
		curriculum.UnitTestMCQs, curriculum.MCQOptions,
		curriculum.UnitTestBlanks,
		curriculum.UnitTestTwoMarks,
		curriculum.UnitTestThreeMarks,
		curriculum.UnitTestFiveMarks,
	)
}

func summaryPrompt(text string) string {
	return "Summarize the text below in one or two simple sentences for a short audio narration to a student.\n\n---\n" + text + "\n---"
}

func imagePrompt(topic, subject string, style curriculum.SubjectStyle) string {
	if style == curriculum.StyleLifeScience {
		return fmt.Sprintf("A simple, clear, scientifically accurate educational diagram for the %s concept: %q. Clean modern textbook illustration, minimal text, clear labels, vibrant colors, high quality, vector art.", strings.ToLower(subject), topic)
	}
	return fmt.Sprintf("A simple, clear, visually appealing educational diagram for the %s concept: %q. Modern infographic style, shows the core idea, no complex code, vibrant colors, high quality, vector art.", strings.ToLower(subject), topic)
}

func chatInstruction(subject, standard, chapter string) string {
	base := fmt.Sprintf("You are an expert %s tutor for students in India following the NCERT syllabus for %q. Always answer in English.", subject, standard)
	if chapter != "" {
		return base + fmt.Sprintf(" The student is studying the chapter %q. Answer clearly and concisely, staying on this chapter. Use simple language and examples where they help.", chapter)
	}
	return base + ` The student has not picked a chapter. Every answer MUST say which chapter the topic belongs to, for example: "Sorting algorithms are covered in the 'Sorting' chapter. Here's how Bubble Sort works..."`
}

const compactInstruction = `Summarize this tutoring conversation concisely. Capture:
- Topics discussed and key concepts
- What the student understood or struggled with
- Any examples worked through
Keep the summary under 150 words.`
