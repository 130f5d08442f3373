package summarize

import (
	"bytes"
	"fmt"
	"text/template"
)

const codePromptTemplate = `You are an intelligent senior software engineer who specialises in onboarding junior software engineers onto projects.
You are onboarding a junior software engineer and explaining to them the purpose of the {{.Path}} file.

Here is the code:
---
{{.Source}}
---

Give a summary no more than 100 words of the code above.`

const commitPromptTemplate = "You are an expert programmer, and you are trying to summarize a git diff.\n" +
	"Reminders about the git diff format:\n" +
	"For every file, there are a few metadata lines, like (for example):\n" +
	"```\n" +
	"diff --git a/lib/index.js b/lib/index.js\n" +
	"index aadf691..bfef603 100644\n" +
	"--- a/lib/index.js\n" +
	"+++ b/lib/index.js\n" +
	"```\n" +
	"This means that `lib/index.js` was modified in this commit. Note that this is only an example.\n" +
	"Then there is a specifier of the lines that were modified.\n" +
	"A line starting with `+` means it was added.\n" +
	"A line starting with `-` means it was removed.\n" +
	"A line that starts with neither `+` nor `-` is code given for context and better understanding.\n" +
	"It is not part of the diff.\n" +
	"[...]\n" +
	"EXAMPLE SUMMARY COMMENTS:\n" +
	"```\n" +
	"* Raised the amount of returned recordings from `10` to `100` [packages/server/recordings_api.ts], [packages/server/constants.ts]\n" +
	"* Fixed a typo in the github action name [.github/workflows/gpt-commit-summarizer.yml]\n" +
	"* Moved the `octokit` initialization to a separate file [src/octokit.ts], [src/index.ts]\n" +
	"* Added an OpenAI API for completions [packages/utils/apis/openai.ts]\n" +
	"* Lowered numeric tolerance for test files\n" +
	"```\n" +
	"Most commits will have fewer comments than this example list.\n" +
	"The last comment does not include the file names,\n" +
	"because there were more than two relevant files in the hypothetical commit.\n" +
	"Do not include parts of the example in your summary.\n" +
	"It is given only as an example of appropriate comments.\n\n" +
	"Please summarize the following diff file:\n\n" +
	"{{.Diff}}"

var (
	codeTmpl   = template.Must(template.New("code").Parse(codePromptTemplate))
	commitTmpl = template.Must(template.New("commit").Parse(commitPromptTemplate))
)

type codePromptData struct {
	Path   string
	Source string
}

type commitPromptData struct {
	Diff string
}

// BuildCodePrompt renders the per-file summary prompt.
func BuildCodePrompt(path, source string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path is required")
	}
	return render(codeTmpl, codePromptData{Path: path, Source: source})
}

// BuildCommitPrompt renders the commit diff summary prompt.
func BuildCommitPrompt(diff string) (string, error) {
	return render(commitTmpl, commitPromptData{Diff: diff})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt template: %w", err)
	}
	return buf.String(), nil
}
