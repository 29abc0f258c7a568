package swarm

import "strings"

// codeFenceLanguages are language identifiers stripped from the first
// line of a fenced code block.
//
//nolint:gochecknoglobals // Fixed lookup table
var codeFenceLanguages = map[string]bool{
	"python": true, "javascript": true, "typescript": true,
	"java": true, "go": true, "rust": true, "html": true,
	"css": true, "sql": true, "bash": true, "yaml": true,
	"json": true,
}

// ParseResponse splits a model response into code and reasoning. The
// code is the first fenced block (language identifier stripped); the
// reasoning is the text following it. A response without a fenced
// block is all reasoning.
func ParseResponse(content string) (code, reasoning string) {
	if !strings.Contains(content, "```") {
		return "", strings.TrimSpace(content)
	}

	parts := strings.Split(content, "```")
	if len(parts) >= 2 {
		block := parts[1]
		lines := strings.Split(block, "\n")
		if len(lines) > 0 && codeFenceLanguages[strings.TrimSpace(lines[0])] {
			block = strings.Join(lines[1:], "\n")
		}
		code = strings.TrimSpace(block)
	}
	if len(parts) >= 3 {
		reasoning = strings.TrimSpace(parts[2])
		reasoning = strings.TrimPrefix(reasoning, "Reasoning:")
		reasoning = strings.TrimSpace(reasoning)
	}
	return code, reasoning
}
