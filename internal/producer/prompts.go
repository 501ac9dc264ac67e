package producer

import (
	"fmt"
	"strings"

	"github.com/joescharf/coderev/internal/models"
)

const responseFormat = `Respond with ONLY a JSON object in this shape, no markdown fencing:
{
  "reasoning": "brief overall assessment",
  "issues": [
    {
      "severity": "critical|major|minor|info",
      "category": "bug|security|performance|style|documentation|best_practice",
      "line_start": 1,
      "line_end": 1,
      "title": "concise issue title",
      "description": "what is wrong and why it matters",
      "suggestion": "how to fix it",
      "confidence": 0.9
    }
  ],
  "score": 85
}
Report exact line numbers. Omit issues you are not confident about.`

const analyzerSystem = `You are an expert code analyzer with deep knowledge of:
- Common bug patterns across multiple languages
- Edge cases and boundary conditions
- Logic errors and race conditions
- Type safety issues
- Error handling best practices
- Code smells and anti-patterns

You provide actionable, specific feedback with exact line numbers.`

const securitySystem = `You are a security expert specializing in:
- OWASP Top 10 vulnerabilities
- SQL injection, XSS, CSRF
- Authentication and authorization flaws
- Insecure data handling
- Cryptographic issues
- Input validation
- Security misconfigurations

You think like an attacker to find exploitable vulnerabilities.`

const optimizerSystem = `You are a performance optimization expert specializing in:
- Algorithm complexity analysis
- Database query optimization
- Memory usage optimization
- Caching strategies
- Concurrency patterns
- Resource management

You identify bottlenecks and suggest concrete improvements.`

const documenterSystem = `You are a documentation quality expert focusing on:
- Function and type documentation
- API documentation
- Inline comment quality
- Naming and readability
- Usage examples

You ensure code is well-documented and maintainable.`

// buildUserPrompt assembles the shared user prompt: focus line, enrichment
// context, then the numbered source.
func buildUserPrompt(focus string, unit models.CodeUnit, pctx Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review this %s file for %s.\n\nFile: %s\n", unit.Language, focus, unit.Path)

	if ctx := contextSection(unit, pctx); ctx != "" {
		sb.WriteString(ctx)
	}

	sb.WriteString("\n<code>\n")
	sb.WriteString(numberLines(unit.Content))
	sb.WriteString("\n</code>\n\n")
	sb.WriteString(responseFormat)
	return sb.String()
}

// contextSection renders static-analysis results for this file and retrieved
// guidance into prompt context blocks.
func contextSection(unit models.CodeUnit, pctx Context) string {
	var sb strings.Builder

	for _, result := range pctx.Static {
		if result.Path != unit.Path || len(result.Issues) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n<static_analysis tool=%q>\n", result.Tool)
		for _, issue := range result.Issues {
			fmt.Fprintf(&sb, "- line %d: %s\n", issue.Line, issue.Message)
		}
		sb.WriteString("</static_analysis>\n")
	}

	if len(pctx.Guidance) > 0 {
		sb.WriteString("\n<best_practices>\n")
		for _, g := range pctx.Guidance {
			fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(g.Content))
		}
		sb.WriteString("</best_practices>\n")
	}

	return sb.String()
}

// numberLines prefixes each source line with its 1-based line number so the
// model can report exact locations.
func numberLines(content string) string {
	lines := strings.Split(content, "\n")
	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%4d | %s\n", i+1, line)
	}
	return strings.TrimRight(sb.String(), "\n")
}
