// Package format turns free-form chat text into ordered, typed content blocks.
// The transform is syntactic only and does not assume any markup target.
package format

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind identifies a block type.
type Kind string

const (
	KindParagraph Kind = "paragraph"
	KindList      Kind = "list"
)

// Block is one unit of displayable content.
type Block struct {
	Kind  Kind     `json:"kind"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Paragraph builds a paragraph block.
func Paragraph(text string) Block { return Block{Kind: KindParagraph, Text: text} }

// List builds a list block.
func List(items ...string) Block { return Block{Kind: KindList, Items: items} }

// Emphasis wrappers are stripped in this order, each pass left to right.
var emphasis = []*regexp.Regexp{
	regexp.MustCompile(`\*\*(.+?)\*\*`),
	regexp.MustCompile(`\*(.+?)\*`),
	regexp.MustCompile(`__(.+?)__`),
	regexp.MustCompile(`_(.+?)_`),
}

var (
	bulletLine   = regexp.MustCompile(`^[-•*]\s`)
	numberedLine = regexp.MustCompile(`^\d+\.\s`)
)

// StripEmphasis removes paired *, **, _ and __ wrappers.
func StripEmphasis(text string) string {
	for _, re := range emphasis {
		text = re.ReplaceAllString(text, "$1")
	}
	return text
}

// Format converts raw text into blocks. Consecutive bullet or numbered lines
// collapse into a single list; blank lines are dropped.
func Format(text string) []Block {
	text = StripEmphasis(text)

	var (
		blocks []Block
		items  []string
	)
	flush := func() {
		if items != nil {
			blocks = append(blocks, List(items...))
			items = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case bulletLine.MatchString(trimmed):
			_, size := utf8.DecodeRuneInString(trimmed)
			items = append(items, strings.TrimSpace(trimmed[size:]))
		case numberedLine.MatchString(trimmed):
			items = append(items, numberedLine.ReplaceAllString(trimmed, ""))
		default:
			flush()
			blocks = append(blocks, Paragraph(trimmed))
		}
	}
	flush()
	return blocks
}

// PlainText renders blocks for a terminal, one line per paragraph or item.
func PlainText(blocks []Block) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch block.Kind {
		case KindList:
			for j, item := range block.Items {
				if j > 0 {
					b.WriteByte('\n')
				}
				b.WriteString("  • ")
				b.WriteString(item)
			}
		default:
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
