// SPDX-License-Identifier: GPL-3.0-or-later
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CrawX/go-imap-harvest/domain"
)

// AllMessages is the criteria used when no filter option is set.
const AllMessages = "ALL"

// FilterRequest selects messages in a mailbox. Unset options (empty strings, false flags and
// non-positive sizes) do not contribute to the search.
type FilterRequest struct {
	Body                  string `toml:"body"`
	ByKeyword             string `toml:"by_keyword"`
	Subject               string `toml:"subject"`
	MailTo                string `toml:"mail_to"`
	MailFrom              string `toml:"mail_from"`
	Since                 string `toml:"since"`
	Before                string `toml:"before"`
	Cc                    string `toml:"cc"`
	Bcc                   string `toml:"bcc"`
	UserAgent             string `toml:"user_agent"`
	HeaderMessageId       string `toml:"header_message_id"`
	Seen                  bool   `toml:"seen"`
	Unseen                bool   `toml:"unseen"`
	Answered              bool   `toml:"answered"`
	Unanswered            bool   `toml:"unanswered"`
	Deleted               bool   `toml:"deleted"`
	Flagged               bool   `toml:"flagged"`
	CustomSearch          string `toml:"custom_search"`
	HighPriority          bool   `toml:"high_priority"`
	LowPriority           bool   `toml:"low_priority"`
	HasAttachment         bool   `toml:"has_attachment"`
	AttachmentSmallerThan int    `toml:"attachment_smaller_than"`
	AttachmentLargerThan  int    `toml:"attachment_larger_than"`
}

type kind int

const (
	textOption kind = iota
	numericOption
	flagOption
)

type option struct {
	name    string
	keyword string
	kind    kind

	text    func(f *FilterRequest) string
	numeric func(f *FilterRequest) int
	flag    func(f *FilterRequest) bool
}

func text(name, keyword string, get func(f *FilterRequest) string) option {
	return option{name: name, keyword: keyword, kind: textOption, text: get}
}

func numeric(name, keyword string, get func(f *FilterRequest) int) option {
	return option{name: name, keyword: keyword, kind: numericOption, numeric: get}
}

func flag(name, keyword string, get func(f *FilterRequest) bool) option {
	return option{name: name, keyword: keyword, kind: flagOption, flag: get}
}

// options is in declaration order, the search expression always follows it.
var options = []option{
	text("body", "BODY", func(f *FilterRequest) string { return f.Body }),
	text("by_keyword", "KEYWORD", func(f *FilterRequest) string { return f.ByKeyword }),
	text("subject", "SUBJECT", func(f *FilterRequest) string { return f.Subject }),
	text("mail_to", "TO", func(f *FilterRequest) string { return f.MailTo }),
	text("mail_from", "FROM", func(f *FilterRequest) string { return f.MailFrom }),
	text("since", "SINCE", func(f *FilterRequest) string { return f.Since }),
	text("before", "BEFORE", func(f *FilterRequest) string { return f.Before }),
	text("cc", "CC", func(f *FilterRequest) string { return f.Cc }),
	text("bcc", "BCC", func(f *FilterRequest) string { return f.Bcc }),
	text("user_agent", "USER", func(f *FilterRequest) string { return f.UserAgent }),
	text("header_message_id", "HEADER Message-ID", func(f *FilterRequest) string { return f.HeaderMessageId }),
	flag("seen", "SEEN", func(f *FilterRequest) bool { return f.Seen }),
	flag("unseen", "UNSEEN", func(f *FilterRequest) bool { return f.Unseen }),
	flag("answered", "ANSWERED", func(f *FilterRequest) bool { return f.Answered }),
	flag("unanswered", "UNANSWERED", func(f *FilterRequest) bool { return f.Unanswered }),
	flag("deleted", "DELETED", func(f *FilterRequest) bool { return f.Deleted }),
	flag("flagged", "FLAGGED", func(f *FilterRequest) bool { return f.Flagged }),
	text("custom_search", "KEYWORD", func(f *FilterRequest) string { return f.CustomSearch }),
	flag("high_priority", "HIGH", func(f *FilterRequest) bool { return f.HighPriority }),
	flag("low_priority", "LOW", func(f *FilterRequest) bool { return f.LowPriority }),
	flag("has_attachment", "HASATTACH", func(f *FilterRequest) bool { return f.HasAttachment }),
	numeric("attachment_smaller_than", "SMALLER", func(f *FilterRequest) int { return f.AttachmentSmallerThan }),
	numeric("attachment_larger_than", "LARGER", func(f *FilterRequest) int { return f.AttachmentLargerThan }),
}

// token returns the search token for o or an empty string if o is not set in f.
func (o option) token(f *FilterRequest) string {
	switch o.kind {
	case flagOption:
		if o.flag(f) {
			return "(" + o.keyword + ")"
		}
	case numericOption:
		if v := o.numeric(f); v > 0 {
			return "(" + o.keyword + " " + strconv.Itoa(v) + ")"
		}
	case textOption:
		if v := sanitize(o.text(f)); len(v) > 0 {
			return "(" + o.keyword + " '" + v + "')"
		}
	}

	return ""
}

// BuildSearchExpression turns the set options of f into IMAP search criteria, one
// parenthesized token per option joined by single spaces. It returns AllMessages if no
// option is set.
func BuildSearchExpression(f FilterRequest) string {
	tokens := []string{}
	for _, o := range options {
		if t := o.token(&f); len(t) > 0 {
			tokens = append(tokens, t)
		}
	}

	if len(tokens) == 0 {
		return AllMessages
	}

	return strings.Join(tokens, " ")
}

func (f FilterRequest) IsEmpty() bool {
	for _, o := range options {
		if len(o.token(&f)) > 0 {
			return false
		}
	}
	return true
}

// Validate reports text options whose value cannot be quoted in the search expression.
// BuildSearchExpression drops the offending characters instead.
func (f FilterRequest) Validate() error {
	invalid := []string{}
	for _, o := range options {
		if o.kind != textOption {
			continue
		}
		if v := o.text(&f); v != sanitize(v) {
			invalid = append(invalid, o.name)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s must not contain single quotes or line breaks", domain.ErrInvalidFilterValue, strings.Join(invalid, ", "))
	}

	return nil
}

func sanitize(value string) string {
	return strings.NewReplacer("'", "", "\r", "", "\n", "").Replace(value)
}
