package core

import (
	"regexp"
	"strings"
)

// ParsedFragment is one (filename, code) pair recovered from raw chat text.
// Filename is nil for fragments extracted without a filename marker.
type ParsedFragment struct {
	Filename *string
	Code     string
}

var (
	// Heuristic 1: a "# filename: <name>" line, a body, a "# endof" line.
	templatePattern = regexp.MustCompile(`(?s)# filename: (.+?)\n(.*?)\n# endof`)

	// Heuristic 2: the same template preceded by a literal "Copy code" line,
	// an artifact of some chat UIs' copy-button label leaking into exports.
	copyCodePattern = regexp.MustCompile(`(?s)Copy code\n# filename: (.+?)\n(.*?)\n# endof`)

	// Heuristics 3 and 4: triple-backtick fences with an optional language tag.
	fencedPattern         = regexp.MustCompile("(?s)```(?:\\w*\\n)?(.*?)```")
	markdownFencedPattern = regexp.MustCompile("(?s)```\\w*\\n(.*?)```")

	filenameHeaderPattern = regexp.MustCompile(`^# filename: (.+?)\n`)
)

// ParseSourceFragments extracts code fragments from raw chat text. The four
// heuristics run independently and their results are concatenated, so a block
// matched by more than one heuristic appears more than once; collapsing the
// redundancy is the dedup gate's job, not the parser's. Unterminated markers
// simply yield no match.
func ParseSourceFragments(content string) []ParsedFragment {
	var fragments []ParsedFragment

	for _, m := range templatePattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		fragments = append(fragments, ParsedFragment{Filename: &name, Code: m[2]})
	}

	for _, m := range copyCodePattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		fragments = append(fragments, ParsedFragment{Filename: &name, Code: m[2]})
	}

	// Fenced blocks; a leading "# filename:" line inside the fence names the
	// fragment and is stripped from the body.
	for _, m := range fencedPattern.FindAllStringSubmatch(content, -1) {
		block := m[1]
		if hm := filenameHeaderPattern.FindStringSubmatch(block); hm != nil {
			name := strings.TrimSpace(hm[1])
			code := strings.TrimSpace(block[len(hm[0]):])
			fragments = append(fragments, ParsedFragment{Filename: &name, Code: code})
		} else {
			fragments = append(fragments, ParsedFragment{Code: strings.TrimSpace(block)})
		}
	}

	// Every fenced block again, filename always absent.
	for _, m := range markdownFencedPattern.FindAllStringSubmatch(content, -1) {
		fragments = append(fragments, ParsedFragment{Code: strings.TrimSpace(m[1])})
	}

	return fragments
}

// CleanContent strips marker lines the template heuristics may leave inside a
// captured body, then drops a first or last line that is a bare fence.
// Callers guarantee the input is non-empty.
func CleanContent(code string) string {
	var cleaned []string
	for _, line := range strings.Split(code, "\n") {
		if strings.HasPrefix(line, "# filename:") || strings.HasPrefix(line, "# endof") {
			continue
		}
		cleaned = append(cleaned, line)
	}
	if len(cleaned) > 0 && strings.TrimSpace(cleaned[0]) == "```" {
		cleaned = cleaned[1:]
	}
	if len(cleaned) > 0 && strings.TrimSpace(cleaned[len(cleaned)-1]) == "```" {
		cleaned = cleaned[:len(cleaned)-1]
	}
	return strings.Join(cleaned, "\n")
}
