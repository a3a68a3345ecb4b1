package transform

import (
	"regexp"
	"strings"
)

var (
	hookHeader = regexp.MustCompile(`^([ \t]*)def[ \t]+(setUp|tearDown)[ \t]*\([ \t]*self[ \t]*\)[ \t]*(?:->[^:]*)?:(.*)$`)
	// hookBoundary ends a hook body. It matches at any indentation, so a
	// nested def inside setUp ends the body early.
	hookBoundary = regexp.MustCompile(`^[ \t]*(?:(?:async[ \t]+)?def[ \t]|@|class[ \t]|if[ \t]+__name__)`)
)

// TransformFixturesText rewrites setUp and tearDown methods in source text
// without parsing it. setUp becomes an autouse setup_method fixture that
// yields after the original body; tearDown methods are removed.
//
// This works line by line and does not understand nesting: a def,
// decorator or class line inside a hook body ends that body. Prefer the
// tree-based rewrite whenever the source parses.
func TransformFixturesText(src string) string {
	lines := strings.SplitAfter(src, "\n")
	var b strings.Builder
	for i := 0; i < len(lines); {
		line := lines[i]
		m := hookHeader.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
		if m == nil {
			b.WriteString(line)
			i++
			continue
		}
		indent, hook, inline := m[1], m[2], strings.TrimSpace(m[3])

		end := i + 1
		for end < len(lines) && !hookBoundary.MatchString(lines[end]) {
			end++
		}
		body, trailing := splitTrailingBlank(lines[i+1 : end])
		if inline != "" && !strings.HasPrefix(inline, "#") {
			body = append([]string{indent + "    " + inline + "\n"}, body...)
		}

		if hook == "setUp" {
			writeSetupFixture(&b, indent, body)
		}
		for _, l := range trailing {
			b.WriteString(l)
		}
		i = end
	}
	return b.String()
}

// splitTrailingBlank separates trailing blank lines from a body.
func splitTrailingBlank(lines []string) ([]string, []string) {
	cut := len(lines)
	for cut > 0 && strings.TrimSpace(lines[cut-1]) == "" {
		cut--
	}
	return lines[:cut], lines[cut:]
}

func writeSetupFixture(b *strings.Builder, indent string, body []string) {
	b.WriteString(indent + "@pytest.fixture(autouse=True)\n")
	b.WriteString(indent + "def setup_method(self):\n")

	bodyIndent := indent + "    "
	hasCode := false
	for _, l := range body {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		if !hasCode {
			bodyIndent = l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		}
		if !strings.HasPrefix(trimmed, "#") {
			hasCode = true
			break
		}
	}

	if !hasCode {
		for _, l := range body {
			b.WriteString(ensureNewline(l))
		}
		b.WriteString(bodyIndent + "pass\n")
		b.WriteString(bodyIndent + "yield\n")
		b.WriteString(bodyIndent + "pass\n")
		return
	}
	for _, l := range body {
		b.WriteString(ensureNewline(l))
	}
	b.WriteString(bodyIndent + "yield\n")
}

func ensureNewline(l string) string {
	if strings.HasSuffix(l, "\n") {
		return l
	}
	return l + "\n"
}
