// Package parser extracts frontmatter, wikilinks, tags and word counts from
// Markdown notes.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/vaultlens/internal/apperr"
	"github.com/starford/vaultlens/internal/checksum"
	"github.com/starford/vaultlens/internal/models"
)

// DefaultExtension is the canonical note extension.
const DefaultExtension = ".md"

var (
	errInvalidUTF8 = errors.New("content is not valid UTF-8")
	utf8BOM        = []byte{0xEF, 0xBB, 0xBF}
)

// Reference is one [[wikilink]] occurrence.
type Reference struct {
	RawTarget string
	Display   *string
	Section   *string
	Embed     bool
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Path        string
	Metadata    models.Metadata
	Body        string
	Title       string
	Aliases     []string
	References  []Reference
	Tags        []string
	WordCount   int
	ContentHash string
	// Warnings are non-fatal problems, e.g. a malformed frontmatter block.
	Warnings []string
}

// Parser turns raw note bytes into a Result.
type Parser struct {
	hash      checksum.Func
	extractor Extractor
}

// Option configures a Parser.
type Option func(*Parser)

// WithHash sets the content digest function.
func WithHash(fn checksum.Func) Option {
	return func(p *Parser) { p.hash = fn }
}

// WithExtractor replaces the reference/tag extractor.
func WithExtractor(e Extractor) Option {
	return func(p *Parser) { p.extractor = e }
}

// New creates a Parser. Without options it hashes with SHA-256 and extracts
// with the Markdown-aware extractor.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	if p.hash == nil {
		p.hash, _ = checksum.ForAlgorithm(checksum.SHA256)
	}
	if p.extractor == nil {
		p.extractor = NewMarkdownExtractor()
	}
	return p
}

var defaultParser = New()

// Parse parses data with the default Parser.
func Parse(notePath string, data []byte) (*Result, error) {
	return defaultParser.Parse(notePath, data)
}

// Hash returns the content digest Parse would record for data.
func (p *Parser) Hash(data []byte) string {
	return p.hash(data)
}

// Parse extracts metadata, references, tags and counts from raw Markdown
// bytes. Only undecodable input is an error; a malformed frontmatter block
// is reported through Result.Warnings.
func (p *Parser) Parse(notePath string, data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, &apperr.ParseError{Path: notePath, Err: errInvalidUTF8}
	}

	res := &Result{
		Path:        notePath,
		ContentHash: p.hash(data),
	}

	fm, body, warn := splitFrontmatter(bytes.TrimPrefix(data, utf8BOM))
	if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}
	if fm == nil {
		fm = models.Metadata{}
	}
	res.Metadata = fm
	res.Body = body

	ext := p.extractor.Extract([]byte(body))
	res.References = ext.References
	res.Tags = mergeTags(metadataTags(fm), ext.Tags)
	res.Aliases = dedupe(append(fm.Strings("aliases"), fm.Strings("alias")...))
	res.Title = deriveTitle(fm, body, notePath)
	res.WordCount = countWords(body)

	return res, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- fences)
// from the Markdown body. If no closed block is found the entire content is
// body. A block that does not decode to a mapping yields nil metadata and a
// warning; its text is still removed from the body.
func splitFrontmatter(data []byte) (models.Metadata, string, string) {
	const delim = "---"

	if !bytes.HasPrefix(data, []byte(delim)) {
		return nil, string(data), ""
	}
	rest := data[len(delim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(string(rest[:nl])) != "" {
		// "---" followed by text on the same line is a rule, not a fence.
		return nil, string(data), ""
	}
	rest = rest[nl+1:]

	// The closing fence is a line holding only "---".
	var block, after []byte
	closed := false
	for off := 0; off < len(rest); {
		line, next := rest[off:], len(rest)
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line, next = line[:i], off+i+1
		}
		if string(bytes.TrimRight(line, " \t\r")) == delim {
			block, after, closed = rest[:off], rest[next:], true
			break
		}
		off = next
	}
	if !closed {
		return nil, string(data), ""
	}
	body := string(after)

	if len(bytes.TrimSpace(block)) == 0 {
		return models.Metadata{}, body, ""
	}
	var fm map[string]any
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, body, fmt.Sprintf("frontmatter ignored: %v", err)
	}
	return models.Metadata(fm), body, ""
}

// metadataTags reads the frontmatter tags/tag field. Scalar values may hold
// several tags separated by commas or spaces.
func metadataTags(fm models.Metadata) []string {
	var out []string
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" {
			out = append(out, t)
		}
	}
	for _, key := range []string{"tags", "tag"} {
		if s, ok := fm[key].(string); ok {
			for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
				add(t)
			}
			continue
		}
		for _, t := range fm.Strings(key) {
			add(t)
		}
	}
	return out
}

func mergeTags(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	return dedupe(all)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise the file name without extension.
func deriveTitle(fm models.Metadata, body, notePath string) string {
	if s := strings.TrimSpace(fm.String("title")); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	base := path.Base(strings.ReplaceAll(notePath, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// countWords counts whitespace-separated tokens outside fenced code blocks.
func countWords(body string) int {
	n := 0
	fence := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			fence = "```"
			continue
		}
		if strings.HasPrefix(trimmed, "~~~") {
			fence = "~~~"
			continue
		}
		n += len(strings.Fields(line))
	}
	return n
}
