// Package tags extracts structured edit actions from the inline tag
// protocol embedded in model responses. Extraction is pure: it never
// touches the filesystem and never fails — malformed or absent tags
// simply yield fewer results.
package tags

import (
	"path"
	"regexp"
	"strings"
)

// attrChunk matches a tag's attribute list, allowing '>' inside quoted
// values so a description mentioning an HTML tag does not end the match.
const attrChunk = `((?:[^>"]|"[^"]*")*)`

var (
	writeRe         = regexp.MustCompile(`(?s)<blaze-write\b` + attrChunk + `>(.*?)</blaze-write>`)
	renameRe        = regexp.MustCompile(`<blaze-rename\b` + attrChunk + `>\s*</blaze-rename>`)
	deleteRe        = regexp.MustCompile(`<blaze-delete\b` + attrChunk + `>\s*</blaze-delete>`)
	searchReplaceRe = regexp.MustCompile(`(?s)<blaze-search-replace\b` + attrChunk + `>(.*?)</blaze-search-replace>`)
	addDepRe        = regexp.MustCompile(`<blaze-add-dependency\b` + attrChunk + `>\s*</blaze-add-dependency>`)
	chatSummaryRe   = regexp.MustCompile(`(?s)<blaze-chat-summary>(.*?)</blaze-chat-summary>`)
	commandRe       = regexp.MustCompile(`<blaze-command\b` + attrChunk + `>\s*</blaze-command>`)

	attrRe = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9_-]*)\s*=\s*"([^"]*)"`)
)

// Search-replace body markers, conflict-marker style.
const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

// Extract scans the full response text and returns every recognized
// action in document order, partitioned by kind.
func Extract(text string) *Batch {
	b := &Batch{
		Writes:         extractWrites(text),
		Renames:        extractRenames(text),
		Deletes:        extractDeletes(text),
		SearchReplaces: extractSearchReplaces(text),
		Packages:       extractPackages(text),
		Commands:       extractCommands(text),
	}
	if sums := chatSummaryRe.FindAllStringSubmatch(text, -1); len(sums) > 0 {
		// The last summary wins; the model restates it as the chat evolves.
		b.ChatSummary = strings.TrimSpace(sums[len(sums)-1][1])
	}
	return b
}

func extractWrites(text string) []WriteAction {
	var out []WriteAction
	for _, m := range writeRe.FindAllStringSubmatch(text, -1) {
		attrs := parseAttrs(m[1])
		p, ok := attrs["path"]
		if !ok || strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, WriteAction{
			Path:        NormalizePath(p),
			Content:     stripFence(m[2]),
			Description: optAttr(attrs, "description"),
		})
	}
	return out
}

func extractRenames(text string) []RenameAction {
	var out []RenameAction
	for _, m := range renameRe.FindAllStringSubmatch(text, -1) {
		attrs := parseAttrs(m[1])
		from, to := attrs["from"], attrs["to"]
		if from == "" || to == "" {
			continue
		}
		out = append(out, RenameAction{From: NormalizePath(from), To: NormalizePath(to)})
	}
	return out
}

func extractDeletes(text string) []DeleteAction {
	var out []DeleteAction
	for _, m := range deleteRe.FindAllStringSubmatch(text, -1) {
		attrs := parseAttrs(m[1])
		if attrs["path"] == "" {
			continue
		}
		out = append(out, DeleteAction{Path: NormalizePath(attrs["path"])})
	}
	return out
}

func extractSearchReplaces(text string) []SearchReplaceAction {
	var out []SearchReplaceAction
	for _, m := range searchReplaceRe.FindAllStringSubmatch(text, -1) {
		attrs := parseAttrs(m[1])
		if attrs["path"] == "" {
			continue
		}
		search, replace, ok := splitSearchReplace(stripFence(m[2]))
		if !ok {
			continue
		}
		out = append(out, SearchReplaceAction{
			Path:        NormalizePath(attrs["path"]),
			Search:      search,
			Replace:     replace,
			Description: optAttr(attrs, "description"),
		})
	}
	return out
}

func extractPackages(text string) []string {
	var out []string
	for _, m := range addDepRe.FindAllStringSubmatch(text, -1) {
		attrs := parseAttrs(m[1])
		out = append(out, strings.Fields(attrs["packages"])...)
	}
	return out
}

func extractCommands(text string) []Command {
	var out []Command
	for _, m := range commandRe.FindAllStringSubmatch(text, -1) {
		attrs := parseAttrs(m[1])
		if attrs["type"] == "" {
			continue
		}
		out = append(out, Command{Type: attrs["type"]})
	}
	return out
}

// parseAttrs reads key="value" pairs from a tag's attribute list,
// tolerating arbitrary whitespace and newlines between them.
func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}

// optAttr returns nil when the attribute was absent, so callers can
// distinguish "not provided" from "provided empty".
func optAttr(attrs map[string]string, key string) *string {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	return &v
}

// splitSearchReplace splits a tag body on the conflict-style markers.
// Returns ok=false when the markers are missing or out of order.
func splitSearchReplace(body string) (search, replace string, ok bool) {
	lines := strings.Split(body, "\n")
	var searchLines, replaceLines []string
	// 0 = before SEARCH, 1 = in search block, 2 = in replace block, 3 = done
	section := 0
	for _, line := range lines {
		switch strings.TrimSpace(line) {
		case searchMarker:
			if section != 0 {
				return "", "", false
			}
			section = 1
			continue
		case dividerMarker:
			if section == 1 {
				section = 2
				continue
			}
		case replaceMarker:
			if section != 2 {
				return "", "", false
			}
			section = 3
			continue
		}
		switch section {
		case 1:
			searchLines = append(searchLines, line)
		case 2:
			replaceLines = append(replaceLines, line)
		}
	}
	if section != 3 {
		return "", "", false
	}
	return strings.Join(searchLines, "\n"), strings.Join(replaceLines, "\n"), true
}

// stripFence removes a fenced code block wrapping a tag body: only the
// very first and very last fence lines are dropped, never interior
// triple-backtick occurrences.
func stripFence(content string) string {
	c := strings.Trim(content, "\n")
	lines := strings.Split(c, "\n")
	if len(lines) < 2 {
		return c
	}
	first := strings.TrimSpace(lines[0])
	last := strings.TrimSpace(lines[len(lines)-1])
	if strings.HasPrefix(first, "```") && last == "```" {
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return c
}

// NormalizePath canonicalizes a tag path attribute to a forward-slash,
// repo-relative form: backslashes become slashes, leading "./" and "/"
// are dropped, and redundant separators collapse.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}
