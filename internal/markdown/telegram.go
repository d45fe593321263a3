// Package markdown renders assistant answers for chat platforms.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// ErrUnbalanced is returned when the rendered HTML does not nest cleanly.
var ErrUnbalanced = errors.New("unbalanced markup")

var md = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// EscapeHTML escapes text for Telegram's HTML parse mode.
func EscapeHTML(s string) string {
	return textEscaper.Replace(s)
}

// ToTelegramHTML renders Markdown into the HTML subset accepted by the
// Telegram Bot API (b, i, s, code, pre, a, blockquote).
func ToTelegramHTML(src string) (string, error) {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))
	r := &telegramRenderer{source: source}
	if err := ast.Walk(doc, r.walk); err != nil {
		return "", err
	}
	out := strings.TrimSpace(r.buf.String())
	if err := checkBalanced(out); err != nil {
		return "", err
	}
	return out, nil
}

type telegramRenderer struct {
	source []byte
	buf    bytes.Buffer
}

func (r *telegramRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Document:
	case *ast.Paragraph:
		if !entering {
			r.buf.WriteString("\n\n")
		}
	case *ast.TextBlock:
		if !entering && node.NextSibling() != nil {
			r.buf.WriteString("\n")
		}
	case *ast.Heading:
		if entering {
			r.buf.WriteString("<b>")
		} else {
			r.buf.WriteString("</b>\n\n")
		}
	case *ast.ThematicBreak:
		if entering {
			r.buf.WriteString("———\n\n")
		}
	case *ast.Blockquote:
		if entering {
			r.buf.WriteString("<blockquote>")
		} else {
			trimTrailingNewlines(&r.buf)
			r.buf.WriteString("</blockquote>\n\n")
		}
	case *ast.List:
		if !entering {
			trimTrailingNewlines(&r.buf)
			r.buf.WriteString("\n\n")
		}
	case *ast.ListItem:
		if entering {
			r.buf.WriteString(listMarker(node))
		} else {
			trimTrailingNewlines(&r.buf)
			r.buf.WriteString("\n")
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if !entering {
			return ast.WalkContinue, nil
		}
		lang := ""
		if fenced, ok := node.(*ast.FencedCodeBlock); ok {
			lang = string(fenced.Language(r.source))
		}
		if lang != "" {
			fmt.Fprintf(&r.buf, `<pre><code class="language-%s">`, attrEscaper.Replace(lang))
		} else {
			r.buf.WriteString("<pre><code>")
		}
		r.writeLines(n, true)
		trimTrailingNewlines(&r.buf)
		r.buf.WriteString("</code></pre>\n\n")
		return ast.WalkSkipChildren, nil
	case *ast.HTMLBlock:
		if entering {
			r.writeLines(n, true)
		}
		return ast.WalkSkipChildren, nil
	case *ast.Text:
		if !entering {
			return ast.WalkContinue, nil
		}
		r.buf.WriteString(EscapeHTML(string(node.Segment.Value(r.source))))
		if node.HardLineBreak() || node.SoftLineBreak() {
			r.buf.WriteString("\n")
		}
	case *ast.String:
		if entering {
			r.buf.WriteString(EscapeHTML(string(node.Value)))
		}
	case *ast.CodeSpan:
		if !entering {
			return ast.WalkContinue, nil
		}
		r.buf.WriteString("<code>")
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				r.buf.WriteString(EscapeHTML(string(t.Segment.Value(r.source))))
			}
		}
		r.buf.WriteString("</code>")
		return ast.WalkSkipChildren, nil
	case *ast.Emphasis:
		tag := "i"
		if node.Level >= 2 {
			tag = "b"
		}
		if entering {
			r.buf.WriteString("<" + tag + ">")
		} else {
			r.buf.WriteString("</" + tag + ">")
		}
	case *east.Strikethrough:
		if entering {
			r.buf.WriteString("<s>")
		} else {
			r.buf.WriteString("</s>")
		}
	case *ast.Link:
		if entering {
			fmt.Fprintf(&r.buf, `<a href="%s">`, attrEscaper.Replace(string(node.Destination)))
		} else {
			r.buf.WriteString("</a>")
		}
	case *ast.AutoLink:
		if entering {
			url := string(node.URL(r.source))
			href := url
			if node.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(href), "mailto:") {
				href = "mailto:" + href
			}
			fmt.Fprintf(&r.buf, `<a href="%s">%s</a>`, attrEscaper.Replace(href), EscapeHTML(url))
		}
		return ast.WalkSkipChildren, nil
	case *ast.Image:
		if entering {
			fmt.Fprintf(&r.buf, `<a href="%s">`, attrEscaper.Replace(string(node.Destination)))
		} else {
			r.buf.WriteString("</a>")
		}
	case *ast.RawHTML:
		if entering {
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				r.buf.WriteString(EscapeHTML(string(seg.Value(r.source))))
			}
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *telegramRenderer) writeLines(n ast.Node, escape bool) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		value := string(seg.Value(r.source))
		if escape {
			value = EscapeHTML(value)
		}
		r.buf.WriteString(value)
	}
}

func listMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "• "
	}
	idx := list.Start
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		idx++
	}
	return strconv.Itoa(idx) + ". "
}

func trimTrailingNewlines(buf *bytes.Buffer) {
	b := buf.Bytes()
	end := len(b)
	for end > 0 && b[end-1] == '\n' {
		end--
	}
	buf.Truncate(end)
}

// checkBalanced verifies that every opened tag is closed in order.
func checkBalanced(html string) error {
	var stack []string
	for i := 0; i < len(html); i++ {
		if html[i] != '<' {
			continue
		}
		end := strings.IndexByte(html[i:], '>')
		if end < 0 {
			return ErrUnbalanced
		}
		tag := html[i+1 : i+end]
		i += end
		closing := strings.HasPrefix(tag, "/")
		name := strings.TrimPrefix(tag, "/")
		if sp := strings.IndexAny(name, " \t"); sp >= 0 {
			name = name[:sp]
		}
		if !closing {
			stack = append(stack, name)
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1] != name {
			return ErrUnbalanced
		}
		stack = stack[:len(stack)-1]
	}
	if len(stack) != 0 {
		return ErrUnbalanced
	}
	return nil
}

var discordEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "~", `\~`, "|", `\|`, ">", `\>`,
)

// EscapeDiscord neutralizes Discord markdown so text renders literally.
func EscapeDiscord(s string) string {
	return discordEscaper.Replace(s)
}
