package chunk

import (
	"context"
	"regexp"
	"strings"

	"github.com/resync-ops/resync/internal/store"
)

// StructureAware chunks markdown along its header hierarchy. Each
// section becomes one chunk carrying its section path and parent
// headers; oversized sections split on paragraph boundaries with code
// fences and tables kept whole.
type StructureAware struct {
	maxTokens int
}

// Verify interface implementation at compile time.
var _ Chunker = (*StructureAware)(nil)

var (
	headerPattern      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n.+?\n---\n*`)
)

// NewStructureAware creates the default chunker. maxTokens <= 0 uses
// the default window.
func NewStructureAware(maxTokens int) *StructureAware {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	return &StructureAware{maxTokens: maxTokens}
}

func (c *StructureAware) Name() string { return StrategyStructureAware }

// section is one header-delimited region.
type section struct {
	title   string
	path    string
	parents []string
	body    string
}

func (c *StructureAware) Chunk(_ context.Context, doc *Document) ([]*store.Chunk, error) {
	if err := validateDoc(doc); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(frontmatterPattern.ReplaceAllString(doc.Content, ""))
	if content == "" {
		return nil, nil
	}

	var chunks []*store.Chunk
	for _, sec := range parseSections(content) {
		body := strings.TrimSpace(sec.body)
		if body == "" {
			continue
		}
		for _, piece := range splitOversized(body, c.maxTokens) {
			chunks = append(chunks, build(doc, len(chunks), sec.path, sec.parents, piece))
		}
	}
	return chunks, nil
}

// parseSections walks the lines once, maintaining a header stack so
// each section knows its full path. Content before the first header
// becomes a path-less preamble section.
func parseSections(content string) []section {
	var sections []section
	stack := make([]string, 6)

	current := section{}
	var body strings.Builder

	flush := func() {
		current.body = body.String()
		if strings.TrimSpace(current.body) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush()

		level := len(m[1])
		title := strings.TrimSpace(m[2])
		stack[level-1] = title
		for i := level; i < 6; i++ {
			stack[i] = ""
		}

		var path []string
		for i := 0; i < level; i++ {
			if stack[i] != "" {
				path = append(path, stack[i])
			}
		}

		current = section{
			title:   title,
			path:    strings.Join(path, " > "),
			parents: append([]string(nil), path[:len(path)-1]...),
		}
	}
	flush()

	return sections
}

// splitOversized breaks a section body into pieces under maxTokens on
// paragraph boundaries. Fenced code blocks and tables are atomic: a
// paragraph inside an open fence merges with it regardless of size.
func splitOversized(body string, maxTokens int) []string {
	if EstimateTokens(body) <= maxTokens {
		return []string{body}
	}

	paragraphs := mergeFences(splitParagraphs(body))

	var pieces []string
	var buf strings.Builder
	for _, para := range paragraphs {
		if buf.Len() > 0 && EstimateTokens(buf.String())+EstimateTokens(para) > maxTokens {
			pieces = append(pieces, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	if buf.Len() > 0 {
		pieces = append(pieces, strings.TrimSpace(buf.String()))
	}
	return pieces
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// mergeFences rejoins paragraphs that a blank line split inside a
// fenced code block, and keeps table rows together.
func mergeFences(paragraphs []string) []string {
	var out []string
	var open strings.Builder
	inFence := false

	for _, para := range paragraphs {
		if inFence {
			open.WriteString("\n\n")
			open.WriteString(para)
			if strings.Count(para, "```")%2 == 1 {
				out = append(out, open.String())
				open.Reset()
				inFence = false
			}
			continue
		}

		if strings.Count(para, "```")%2 == 1 {
			inFence = true
			open.WriteString(para)
			continue
		}

		// A table row following a table paragraph belongs to it.
		if len(out) > 0 && isTable(para) && isTable(out[len(out)-1]) {
			out[len(out)-1] += "\n" + para
			continue
		}

		out = append(out, para)
	}

	if inFence {
		out = append(out, open.String())
	}
	return out
}

func isTable(para string) bool {
	line := strings.TrimSpace(para)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
}
