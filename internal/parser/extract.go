package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	wikilinkRe = regexp.MustCompile(`(!?)\[\[([^\[\]\n]+?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_/-]+)`)
	urlRe      = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.-]*://[^\s<>()\[\]]+`)
)

// Extraction is what an Extractor finds in a note body.
type Extraction struct {
	References []Reference
	Tags       []string
}

// Extractor finds references and inline tags in a note body. The matching
// technique is an implementation detail of each Extractor.
type Extractor interface {
	Extract(body []byte) Extraction
}

// MarkdownExtractor uses the goldmark AST to locate code spans and code
// blocks, then matches wikilinks and tags in the remaining text.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

// NewMarkdownExtractor returns an extractor backed by a CommonMark parser.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

type span struct{ start, stop int }

// Extract returns every wikilink occurrence (in document order) and the
// de-duplicated inline tags.
func (e *MarkdownExtractor) Extract(body []byte) Extraction {
	masked := make([]byte, len(body))
	copy(masked, body)
	blank(masked, e.codeSpans(body))

	var out Extraction
	var linkSpans []span
	for _, m := range wikilinkRe.FindAllSubmatchIndex(masked, -1) {
		linkSpans = append(linkSpans, span{m[0], m[1]})
		ref, ok := parseReference(string(body[m[4]:m[5]]))
		if !ok {
			continue
		}
		ref.Embed = m[3] > m[2]
		out.References = append(out.References, ref)
	}
	blank(masked, linkSpans)

	var urlSpans []span
	for _, m := range urlRe.FindAllIndex(masked, -1) {
		urlSpans = append(urlSpans, span{m[0], m[1]})
	}
	blank(masked, urlSpans)

	var tags []string
	for _, m := range tagRe.FindAllSubmatch(masked, -1) {
		t := strings.TrimRight(string(m[1]), "/")
		if t == "" || allDigits(t) {
			continue
		}
		tags = append(tags, t)
	}
	out.Tags = dedupe(tags)
	return out
}

// codeSpans returns the byte ranges of code block lines and inline code.
func (e *MarkdownExtractor) codeSpans(body []byte) []span {
	doc := e.md.Parser().Parse(text.NewReader(body))
	var spans []span
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				spans = append(spans, span{seg.Start, seg.Stop})
			}
			return ast.WalkSkipChildren, nil
		case ast.KindCodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					spans = append(spans, span{t.Segment.Start, t.Segment.Stop})
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

// parseReference splits the inside of [[...]] into target, section and
// display text. An empty target (e.g. [[#Heading]]) is not a reference.
func parseReference(inner string) (Reference, bool) {
	var ref Reference
	target := inner
	if i := strings.Index(inner, "|"); i >= 0 {
		target = inner[:i]
		if d := strings.TrimSpace(inner[i+1:]); d != "" {
			ref.Display = &d
		}
	}
	// Escaped pipes inside tables leave a trailing backslash.
	target = strings.TrimSuffix(target, `\`)
	if i := strings.Index(target, "#"); i >= 0 {
		if s := strings.TrimSpace(target[i+1:]); s != "" {
			ref.Section = &s
		}
		target = target[:i]
	}
	ref.RawTarget = strings.TrimSpace(target)
	return ref, ref.RawTarget != ""
}

// maskByte fills blanked ranges. It is neither whitespace nor a tag
// character, so text glued to a masked range gains no word boundary.
const maskByte = 0x00

// blank overwrites the given ranges with maskByte, keeping newlines so that
// line-anchored patterns still see line starts.
func blank(buf []byte, spans []span) {
	for _, s := range spans {
		for i := s.start; i < s.stop && i < len(buf); i++ {
			if buf[i] != '\n' {
				buf[i] = maskByte
			}
		}
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
