// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"fmt"
	stdmail "net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kyokomi/emoji/v2"
	"mvdan.cc/xurls/v2"
)

// Rewrite is the result of a best-effort transformation. If Err is set, Value holds the
// unchanged input.
type Rewrite struct {
	Value string
	Err   error
}

func (r Rewrite) Ok() bool {
	return r.Err == nil
}

func kept(original string, err error) Rewrite {
	return Rewrite{Value: original, Err: err}
}

const (
	DateLayout          = "Mon, 2 Jan 2006 15:04:05 -0700"
	FormattedDateLayout = "2006-01-02 15:04:05"
)

// FormatDate reparses an RFC 5322 date into FormattedDateLayout, keeping the zone offset of
// the original value.
func FormatDate(date string) Rewrite {
	trimmed := strings.TrimSpace(date)
	t, err := time.Parse(DateLayout, trimmed)
	if err != nil {
		t, err = stdmail.ParseDate(trimmed)
		if err != nil {
			return kept(date, fmt.Errorf("could not parse date: %w", err))
		}
	}

	return Rewrite{Value: t.Format(FormattedDateLayout)}
}

type Sender struct {
	Name    string
	Address string
	Err     error
}

// SplitSender separates the display name from the address of a header value like
// `"Display Name" <addr@example.com>`. Lists with several angle-bracket addresses are split
// per entry and joined with ", ". Names containing a comma or quote are quoted in that case.
func SplitSender(value string) Sender {
	if strings.Count(value, "<") > 1 {
		list, err := stdmail.ParseAddressList(value)
		if err != nil {
			return Sender{Err: fmt.Errorf("could not parse address list: %w", err)}
		}

		names, addresses := []string{}, []string{}
		for _, a := range list {
			names = append(names, listName(a.Name))
			addresses = append(addresses, a.Address)
		}
		return Sender{Name: strings.Join(names, ", "), Address: strings.Join(addresses, ", ")}
	}

	open := strings.Index(value, "<")
	if open < 0 {
		return Sender{Err: fmt.Errorf("no address in angle brackets")}
	}
	end := strings.Index(value[open:], ">")
	if end < 0 {
		return Sender{Err: fmt.Errorf("unterminated address")}
	}

	address := strings.TrimSpace(value[open+1 : open+end])
	if len(address) == 0 {
		return Sender{Err: fmt.Errorf("empty address")}
	}

	name := strings.Trim(strings.TrimSpace(value[:open]), `"`)
	return Sender{Name: strings.TrimSpace(name), Address: address}
}

func listName(name string) string {
	if !strings.ContainsAny(name, `,"`) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}

var (
	webURL      = mustWebURL()
	anchorLink  = longest(`(?is)<a\b[^>]*>\s*(` + webURL.String() + `)\s*</a>`)
	bracketLink = longest(`<(` + webURL.String() + `)>`)
)

// mustWebURL matches http(s) URLs. Trailing punctuation and unbalanced parentheses are not part
// of a match.
func mustWebURL() *regexp.Regexp {
	re, err := xurls.StrictMatchingScheme(`https?://`)
	if err != nil {
		panic(err)
	}
	return re
}

func longest(expr string) *regexp.Regexp {
	re := regexp.MustCompile(expr)
	re.Longest()
	return re
}

// IsWebURL reports whether s is exactly one http(s) URL.
func IsWebURL(s string) bool {
	loc := webURL.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// NormalizeLinks removes anchor tags and angle brackets that enclose a bare http(s) URL.
func NormalizeLinks(body string) Rewrite {
	if !strings.Contains(body, "http") {
		return Rewrite{Value: body}
	}

	normalized := anchorLink.ReplaceAllString(body, "$1")
	normalized = bracketLink.ReplaceAllString(normalized, "$1")
	return Rewrite{Value: normalized}
}

// CleanBody keeps the first non-empty line with whitespace runs collapsed to single spaces.
func CleanBody(body string) Rewrite {
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if cleaned := strings.Join(strings.Fields(line), " "); len(cleaned) > 0 {
			return Rewrite{Value: cleaned}
		}
	}

	return Rewrite{Value: ""}
}

var (
	emojiOnce     sync.Once
	emojiNames    map[string]string
	emojiStarts   map[rune]bool
	emojiMaxRunes int

	emojiQualified map[string]bool
)

// variationSelector requests emoji presentation. Glyphs are matched without it so that the
// text and emoji form of a character get the same name.
const variationSelector = "\ufe0f"

func loadEmoji() {
	emojiNames = map[string]string{}
	emojiStarts = map[rune]bool{}
	emojiQualified = map[string]bool{}
	for glyph, aliases := range emoji.RevCodeMap() {
		qualified := strings.Contains(glyph, variationSelector)
		glyph = strings.ReplaceAll(strings.TrimSpace(glyph), variationSelector, "")
		if len(aliases) == 0 || len(glyph) == 0 || isASCII(glyph) {
			continue
		}

		// first alias, as emoji.NormalizeShortCode picks it
		name := aliases[0]
		if existing, ok := emojiNames[glyph]; ok {
			// the fully qualified sequence names the emoji, otherwise the smaller name wins
			if emojiQualified[glyph] && !qualified || emojiQualified[glyph] == qualified && existing < name {
				continue
			}
		}
		emojiNames[glyph] = name
		emojiQualified[glyph] = qualified

		runes := []rune(glyph)
		emojiStarts[runes[0]] = true
		if len(runes) > emojiMaxRunes {
			emojiMaxRunes = len(runes)
		}
	}
}

// ReplaceEmoji rewrites emoji to their :short_name: form. The longest known sequence wins, so
// skin tones and joined sequences map to a single name where one exists. Variation selectors
// are dropped.
func ReplaceEmoji(body string) Rewrite {
	emojiOnce.Do(loadEmoji)

	runes := []rune(strings.ReplaceAll(body, variationSelector, ""))
	b := &strings.Builder{}
	for i := 0; i < len(runes); {
		if !emojiStarts[runes[i]] {
			b.WriteRune(runes[i])
			i++
			continue
		}

		matched := false
		for l := min(emojiMaxRunes, len(runes)-i); l > 0; l-- {
			if name, ok := emojiNames[string(runes[i:i+l])]; ok {
				b.WriteString(name)
				i += l
				matched = true
				break
			}
		}

		if !matched {
			b.WriteRune(runes[i])
			i++
		}
	}

	return Rewrite{Value: b.String()}
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
