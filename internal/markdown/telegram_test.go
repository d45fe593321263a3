package markdown

import (
	"errors"
	"testing"
)

func TestToTelegramHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello", want: "hello"},
		{name: "bold and italic", in: "**bold** and *it*", want: "<b>bold</b> and <i>it</i>"},
		{name: "escapes", in: "a < b & c > d", want: "a &lt; b &amp; c &gt; d"},
		{name: "inline code", in: "run `x<y`", want: "run <code>x&lt;y</code>"},
		{name: "fenced code", in: "```go\nfmt.Println(1)\n```", want: "<pre><code class=\"language-go\">fmt.Println(1)</code></pre>"},
		{name: "link", in: "[site](https://example.com?a=1&b=2)", want: "<a href=\"https://example.com?a=1&amp;b=2\">site</a>"},
		{name: "heading", in: "# Title\n\nbody", want: "<b>Title</b>\n\nbody"},
		{name: "bullets", in: "- one\n- two", want: "• one\n• two"},
		{name: "ordered", in: "3. a\n4. b", want: "3. a\n4. b"},
		{name: "strike", in: "~~old~~", want: "<s>old</s>"},
		{name: "raw html is escaped", in: "x <span>y</span>", want: "x &lt;span&gt;y&lt;/span&gt;"},
		{name: "unclosed emphasis stays literal", in: "**bo", want: "**bo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ToTelegramHTML(tt.in)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckBalanced(t *testing.T) {
	t.Parallel()

	if err := checkBalanced("<b>x <i>y</i></b>"); err != nil {
		t.Fatalf("expected balanced, got %v", err)
	}
	if err := checkBalanced("<b>x <i>y</b></i>"); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}
	if err := checkBalanced("<b>open"); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}
}

func TestEscapeDiscord(t *testing.T) {
	t.Parallel()

	if got := EscapeDiscord("*a* _b_ `c`"); got != "\\*a\\* \\_b\\_ \\`c\\`" {
		t.Fatalf("unexpected escape %q", got)
	}
}
