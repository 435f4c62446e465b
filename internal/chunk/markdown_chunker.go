package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MarkdownSplitterOptions configures the markdown splitter behavior.
type MarkdownSplitterOptions struct {
	Size    int // Maximum runes per chunk (default: DefaultChunkSize)
	Overlap int // Overlap when re-splitting long sections (default: DefaultChunkOverlap)
}

// MarkdownSplitter splits markdown by headers so each chunk stays inside
// one section. Sections longer than Size are re-split at sentence
// boundaries, with the section path prepended to continuation pieces so
// they remain attributable after retrieval.
type MarkdownSplitter struct {
	options  MarkdownSplitterOptions
	sentence *SentenceSplitter
}

var (
	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
)

// NewMarkdownSplitter creates a markdown splitter with default options.
func NewMarkdownSplitter() *MarkdownSplitter {
	return NewMarkdownSplitterWithOptions(MarkdownSplitterOptions{})
}

// NewMarkdownSplitterWithOptions creates a markdown splitter with custom options.
func NewMarkdownSplitterWithOptions(opts MarkdownSplitterOptions) *MarkdownSplitter {
	if opts.Size <= 0 {
		opts.Size = DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = DefaultChunkOverlap
	}
	return &MarkdownSplitter{
		options: opts,
		sentence: NewSentenceSplitterWithOptions(SentenceSplitterOptions{
			Size:    opts.Size,
			Overlap: opts.Overlap,
		}),
	}
}

// Split splits markdown text into section-aligned pieces.
func (m *MarkdownSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// YAML frontmatter is metadata, not answerable knowledge. Skip it.
	if match := frontmatterPattern.FindString(text); match != "" {
		text = text[len(match):]
	}

	sections := parseSections(text)

	var pieces []string
	for _, sec := range sections {
		pieces = append(pieces, m.splitSection(sec)...)
	}
	return pieces
}

// section is a markdown section with its header hierarchy.
type section struct {
	headerPath string // "Top > Middle > Deep", empty before the first header
	content    string // Header line plus body
}

// parseSections splits markdown into per-header sections, tracking the
// header hierarchy. Content before the first header becomes a section
// with an empty path.
func parseSections(text string) []*section {
	lines := strings.Split(text, "\n")
	var sections []*section
	headerStack := make([]string, 6) // Levels 1-6

	var current *section
	var content strings.Builder

	flush := func() {
		if current != nil {
			current.content = content.String()
			sections = append(sections, current)
		} else if strings.TrimSpace(content.String()) != "" {
			sections = append(sections, &section{content: content.String()})
		}
		content.Reset()
	}

	for _, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			flush()

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			// Clear deeper levels so sibling sections don't inherit them
			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var pathParts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					pathParts = append(pathParts, headerStack[i])
				}
			}

			current = &section{headerPath: strings.Join(pathParts, " > ")}
		}
		content.WriteString(line)
		content.WriteString("\n")
	}
	flush()

	return sections
}

// splitSection turns one section into pieces, re-splitting when it
// exceeds the chunk size.
func (m *MarkdownSplitter) splitSection(sec *section) []string {
	trimmed := strings.TrimSpace(sec.content)
	if trimmed == "" {
		return nil
	}

	// Header with no body carries nothing worth retrieving.
	if sec.headerPath != "" && len(strings.Split(trimmed, "\n")) <= 1 {
		return nil
	}

	if utf8.RuneCountInString(trimmed) <= m.options.Size {
		return []string{trimmed}
	}

	parts := m.sentence.Split(trimmed)
	for i := 1; i < len(parts); i++ {
		if sec.headerPath != "" {
			parts[i] = "<!-- Section: " + sec.headerPath + " -->\n\n" + parts[i]
		}
	}
	return parts
}
