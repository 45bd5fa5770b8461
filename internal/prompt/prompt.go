// Пакет prompt — сборка запроса к модели из корпуса исходного кода
// и описания ошибки.
package prompt

import "strings"

// SystemInstruction — системная инструкция, передаваемая с каждым запросом.
const SystemInstruction = `You are an Elite Frontend Debugger specializing in visual bug analysis.

Your task is to:
1. Analyze the video to identify the exact moment and nature of the bug
2. Correlate the visual symptoms with the provided codebase
3. Pinpoint the root cause with specific file and line references
4. Provide corrected code with clear explanations`

// Заголовки секций. Тесты и потребители ищут их в собранном тексте.
const (
	// DescriptionHeading — секция пользовательского описания ошибки
	DescriptionHeading = "## USER BUG DESCRIPTION"
	// CodebaseHeading — секция корпуса исходного кода
	CodebaseHeading = "## CODEBASE"
	// ClosingLine — завершающая инструкция
	ClosingLine = "Provide your detailed debugging report below:"
)

const protocolHeader = `Analyze the video and codebase to find and fix the bug.

## ANALYSIS PROTOCOL

### 1. Video Analysis
- Identify the exact moment the bug occurs in the video
- Describe the visual symptoms in detail
- Note any user interactions that trigger the bug

### 2. Code Correlation
- Scan the codebase for components related to the buggy behavior
- Identify files and functions that could cause the issue
- Trace the code execution path

### 3. Root Cause
- Pinpoint the specific file(s) and line(s) causing the bug
- Explain WHY this code produces the visual bug

### 4. Solution
- Provide corrected code blocks
- Explain the fix clearly

---
`

// Assemble собирает запрос в фиксированном порядке: протокол анализа,
// описание ошибки (только если после обрезки пробелов оно не пустое),
// корпус без изменений, завершающая инструкция.
// Корпус не усекается.
func Assemble(corpus, bugDescription string) string {
	var sb strings.Builder
	sb.Grow(len(protocolHeader) + len(corpus) + len(bugDescription) + 256)

	sb.WriteString(protocolHeader)

	if desc := strings.TrimSpace(bugDescription); desc != "" {
		sb.WriteString("\n")
		sb.WriteString(DescriptionHeading)
		sb.WriteString("\n\nThe developer provided the following context about the bug:\n\n> ")
		sb.WriteString(desc)
		sb.WriteString("\n\nUse this information to focus your analysis on the specific issue described.\n\n---\n")
	}

	sb.WriteString("\n")
	sb.WriteString(CodebaseHeading)
	sb.WriteString("\n\n")
	sb.WriteString(corpus)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString(ClosingLine)
	sb.WriteString("\n")

	return sb.String()
}
