// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"strings"

	"golang.org/x/net/html"
)

var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "hr": true,
}

// HtmlToText drops markup, scripts and styles. Block level elements end a line. The http(s)
// target of a link follows the link text unless the text already shows it.
func HtmlToText(htmlBody string) string {
	z := html.NewTokenizer(strings.NewReader(htmlBody))
	b := &strings.Builder{}
	skip := 0

	// href of the open anchor and the text written since it opened
	href, linkStart := "", 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tt == html.StartTagToken && (tag == "script" || tag == "style") {
				skip++
			}
			if tt == html.StartTagToken && tag == "a" {
				href, linkStart = linkTarget(z), b.Len()
			}
			if blockElements[tag] {
				newline(b)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if tag == "a" && len(href) > 0 {
				if !strings.Contains(b.String()[linkStart:], href) {
					word(b, href)
				}
				href = ""
			}
			if blockElements[tag] {
				newline(b)
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := strings.Join(strings.Fields(string(z.Text())), " ")
			if len(text) == 0 {
				continue
			}
			word(b, text)
		}
	}
}

func word(b *strings.Builder, text string) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte(' ')
	}
	b.WriteString(text)
}

func linkTarget(z *html.Tokenizer) string {
	for {
		key, value, more := z.TagAttr()
		if string(key) == "href" {
			target := strings.TrimSpace(string(value))
			if IsWebURL(target) {
				return target
			}
			return ""
		}
		if !more {
			return ""
		}
	}
}

func newline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
}
