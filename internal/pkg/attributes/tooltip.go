package attributes

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TooltipKey holds the whole tooltip text when nothing structured was found.
const TooltipKey = "tooltip"

// FromTooltip extracts attributes from a tooltip string. Strategies, in order:
// bold-tag label/value pairs, "label: value" blocks, "label=value" lines,
// "label: value" lines, then the full text under TooltipKey.
func FromTooltip(tip string) map[string]*string {
	tip = strings.TrimSpace(tip)
	if tip == "" {
		return nil
	}

	lines := []string{tip}
	if looksLikeMarkup(tip) {
		doc, err := html.Parse(strings.NewReader(tip))
		if err == nil {
			if attrs := fromMarkup(doc); len(attrs) > 0 {
				return attrs
			}
			lines = textLines(doc)
		}
	} else {
		lines = strings.Split(tip, "\n")
	}

	for _, sep := range []string{"=", ":"} {
		if attrs := fromDelimitedLines(lines, sep); len(attrs) > 0 {
			return attrs
		}
	}

	text := collapseSpace(strings.Join(lines, " "))
	if text == "" {
		return nil
	}
	return map[string]*string{TooltipKey: &text}
}

func looksLikeMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

// fromMarkup walks leaf <div> blocks (or the whole body when there are none).
// A block with <b> labels yields one pair per label; a block without them is
// read as "label: value", preferring a link target as the value.
func fromMarkup(doc *html.Node) map[string]*string {
	attrs := make(map[string]*string)

	blocks := leafDivs(doc)
	if len(blocks) == 0 {
		blocks = []*html.Node{doc}
	}

	for _, block := range blocks {
		bolds := findAll(block, atom.B)
		if len(bolds) > 0 {
			for _, b := range bolds {
				key := NormalizeKey(strings.ReplaceAll(textOf(b), ":", ""))
				value := valueAfter(b)
				if key != "" && value != "" {
					attrs[key] = &value
				}
			}
			continue
		}
		if block == doc {
			continue
		}

		label, value, ok := strings.Cut(collapseSpace(textOf(block)), ":")
		if !ok {
			continue
		}
		key := NormalizeKey(label)
		value = strings.TrimSpace(value)
		if href := firstHref(block); href != "" {
			value = href
		}
		if key != "" && value != "" {
			attrs[key] = &value
		}
	}
	return attrs
}

// valueAfter gathers the text following a <b> label up to the next <b>,
// skipping line breaks.
func valueAfter(b *html.Node) string {
	var parts []string
	for sib := b.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode {
			if sib.DataAtom == atom.B {
				break
			}
			if sib.DataAtom == atom.Br {
				continue
			}
		}
		if t := collapseSpace(textOf(sib)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func fromDelimitedLines(lines []string, sep string) map[string]*string {
	attrs := make(map[string]*string)
	for _, line := range lines {
		label, value, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		key := NormalizeKey(label)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		attrs[key] = &value
	}
	return attrs
}

func leafDivs(n *html.Node) []*html.Node {
	var out []*html.Node
	for _, div := range findAll(n, atom.Div) {
		if len(findAll(div, atom.Div)) == 0 {
			out = append(out, div)
		}
	}
	return out
}

// findAll returns the descendants of n (excluding n) with the given tag,
// in document order.
func findAll(n *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func firstHref(n *html.Node) string {
	for _, a := range findAll(n, atom.A) {
		for _, attr := range a.Attr {
			if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
				return strings.TrimSpace(attr.Val)
			}
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// textLines flattens a document into text lines, breaking at <br> and at
// block elements.
func textLines(doc *html.Node) []string {
	var lines []string
	var cur strings.Builder
	flush := func() {
		if t := collapseSpace(cur.String()); t != "" {
			lines = append(lines, t)
		}
		cur.Reset()
	}
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				for i, seg := range strings.Split(c.Data, "\n") {
					if i > 0 {
						flush()
					}
					cur.WriteString(seg)
				}
			case c.Type == html.ElementNode && c.DataAtom == atom.Br:
				flush()
			case c.Type == html.ElementNode && isBlock(c.DataAtom):
				flush()
				walk(c)
				flush()
			default:
				walk(c)
			}
		}
	}
	walk(doc)
	flush()
	return lines
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.P, atom.Li, atom.Tr, atom.Table, atom.Ul:
		return true
	}
	return false
}

func collapseSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
