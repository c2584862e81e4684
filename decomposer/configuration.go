// SPDX-License-Identifier: GPL-3.0-or-later
package decomposer

import (
	"fmt"

	"github.com/CrawX/go-imap-harvest/domain"
)

type ConfigFunc func(c *configuration) error

// WithoutEmojiSupport keeps emoji glyphs in the body instead of rewriting them to :name: tags.
func WithoutEmojiSupport() ConfigFunc {
	return func(c *configuration) error {
		c.EmojiSupport = false
		return nil
	}
}

// CleanBodyText reduces the body to its first non-empty line.
func CleanBodyText() ConfigFunc {
	return func(c *configuration) error {
		c.CleanBody = true
		return nil
	}
}

func FormatDatetime() ConfigFunc {
	return func(c *configuration) error {
		c.FormatDate = true
		return nil
	}
}

func ReturnAttachments() ConfigFunc {
	return func(c *configuration) error {
		c.ReturnAttachments = true
		return nil
	}
}

// SaveAttachments writes accepted attachments below path, the attachments directory if path
// is empty.
func SaveAttachments(path string) ConfigFunc {
	return func(c *configuration) error {
		c.SaveAttachments = true
		c.AttachmentPath = path
		return nil
	}
}

func FullHeaders() ConfigFunc {
	return func(c *configuration) error {
		c.FullHeaders = true
		return nil
	}
}

func SeparateSenderEmail() ConfigFunc {
	return func(c *configuration) error {
		c.SeparateSender = true
		return nil
	}
}

// UnwrapReports replaces SpamAssassin report mails by the original mail they carry.
func UnwrapReports() ConfigFunc {
	return func(c *configuration) error {
		c.UnwrapReports = true
		return nil
	}
}

// VerifyArc evaluates the ARC headers of every message, see mail.VerifyArc.
func VerifyArc() ConfigFunc {
	return func(c *configuration) error {
		c.VerifyArc = true
		return nil
	}
}

func Classifier(classifier domain.ContentClassifier) ConfigFunc {
	return func(c *configuration) error {
		if classifier == nil {
			return fmt.Errorf("Classifier cannot be nil")
		}
		c.Classifier = classifier
		return nil
	}
}

type configuration struct {
	EmojiSupport bool
	CleanBody    bool
	FormatDate   bool

	ReturnAttachments bool
	SaveAttachments   bool
	AttachmentPath    string

	FullHeaders    bool
	SeparateSender bool
	UnwrapReports  bool
	VerifyArc      bool

	Classifier domain.ContentClassifier
}

func defaultConfiguration() *configuration {
	return &configuration{
		EmojiSupport: true,
	}
}
