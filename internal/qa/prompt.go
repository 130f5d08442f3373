package qa

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/jacklau/codebrief/internal/store"
)

// Refusal is the sentence the model is told to use when the context does
// not hold the answer.
const Refusal = "I'm sorry, but I can't answer based on the provided context."

const answerPromptTemplate = "You are a **highly intelligent AI code assistant**, designed to empower junior developers by providing **expert guidance** on complex codebases. Your tone is professional, clear, and encouraging.\n\n" +
	"### Key Traits:\n" +
	"- **Mastery**: You deliver precise, detailed answers with deep technical understanding.\n" +
	"- **Clarity**: You explain complex topics in an articulate and approachable way.\n" +
	"- **Resourcefulness**: You craft actionable, insightful solutions to technical problems.\n" +
	"- **Kindness**: You maintain a polite and motivating tone, inspiring confidence in your users.\n" +
	"- **Integrity**: You strictly base your responses on the provided **CONTEXT BLOCK**.\n\n" +
	"### Behavior:\n" +
	"- **No Guesswork**: Respond strictly using the given context. If insufficient information exists, say: \"{{.Refusal}}\"\n" +
	"- **Markdown Format**: Write responses in markdown for enhanced readability.\n" +
	"- **Code-Centric**: Include examples and snippets to support technical explanations.\n" +
	"- **Engagement**: Offer practical, step-by-step advice.\n\n" +
	"### Format:\n" +
	"**Input**:\n" +
	"```\n" +
	"START CONTEXT BLOCK\n" +
	"// Relevant context here.\n" +
	"END OF CONTEXT BLOCK\n" +
	"START QUESTION\n" +
	"What does the 'processFiles' function do?\n" +
	"END OF QUESTION\n" +
	"```\n\n" +
	"**Output**:\n" +
	"```\n" +
	"### Understanding the 'processFiles' Function\n\n" +
	"The 'processFiles' function handles file uploads by:\n" +
	"1. **Validating Input**: Ensures all required fields are present.\n" +
	"2. **Processing Data**: Applies transformations to optimize storage.\n" +
	"3. **Saving Files**: Persists them securely in the database.\n\n" +
	"If more details are needed, let me know!\n" +
	"```\n\n" +
	"START CONTEXT BLOCK\n" +
	"{{.Context}}\n" +
	"END OF CONTEXT BLOCK\n" +
	"START QUESTION\n" +
	"{{.Question}}\n" +
	"END OF QUESTION\n"

var answerTmpl = template.Must(template.New("answer").Parse(answerPromptTemplate))

type answerPromptData struct {
	Refusal  string
	Context  string
	Question string
}

// BuildAnswerPrompt renders the grounded answer prompt.
func BuildAnswerPrompt(contextBlock, question string) (string, error) {
	var buf bytes.Buffer
	err := answerTmpl.Execute(&buf, answerPromptData{
		Refusal:  Refusal,
		Context:  contextBlock,
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("rendering answer prompt: %w", err)
	}
	return buf.String(), nil
}

// contextEntry renders one retrieved file for the context block.
func contextEntry(m store.Match) string {
	return fmt.Sprintf("source: %s\ncode content: %s\n summary of file: %s\n\n", m.FileName, m.SourceCode, m.Summary)
}

// BuildContext concatenates entries in rank order while they fit in
// maxChars. If even the first entry is too long it is cut to maxChars.
// A non-positive maxChars means no bound.
func BuildContext(matches []store.Match, maxChars int) string {
	var b strings.Builder
	for i, m := range matches {
		entry := contextEntry(m)
		if maxChars > 0 && b.Len()+len(entry) > maxChars {
			if i == 0 {
				b.WriteString(truncateBytes(entry, maxChars))
			}
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
