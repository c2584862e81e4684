// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CrawX/go-imap-harvest/decomposer"
	"github.com/CrawX/go-imap-harvest/filter"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Database string

	ImapHost string
	User     string
	Password string

	SpamassassinHost string

	RspamdController string
	RspamdPassword   string

	DryRun bool

	MoveProcessed   bool
	DeleteProcessed bool
	ProcessedFolder string

	Mailboxes []string

	Filter  filter.FilterRequest `toml:"filter"`
	Extract ExtractConfig        `toml:"extract"`

	Loglevel *string
}

// ExtractConfig controls how fetched messages are decomposed. Pointer fields default to true.
type ExtractConfig struct {
	EmojiSupport        *bool  `toml:"emoji_support"`
	CleanBodyText       bool   `toml:"clean_body_text"`
	FormatDatetime      bool   `toml:"format_datetime"`
	ReturnAttachments   bool   `toml:"return_attachments"`
	SaveAttachments     bool   `toml:"save_attachments"`
	SaveAttachmentsPath string `toml:"save_attachments_path"`
	OnlyBasicHeaders    *bool  `toml:"only_basic_headers"`
	SeparateSenderEmail bool   `toml:"separate_sender_email"`
	UnwrapReports       bool   `toml:"unwrap_reports"`
	VerifyArc           bool   `toml:"verify_arc"`
}

func ReadConfig(filename string) (*Config, error) {
	config := defaultConfig()

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Database:  "persistence.db",
		Mailboxes: []string{"INBOX"},
		DryRun:    true,
	}
}

func (c *Config) validate() error {
	if err := validateNonEmptyStringField(c.Database, "Database name must not be empty, set to a filename for the sqlite database"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.ImapHost, "ImapHost must not be empty, set to host:port of the imap server"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.User, "User must not be empty, set to username on the imap server"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.Password, "Password must not be empty, set to password of User on the imap server"); err != nil {
		return err
	}

	if len(c.Mailboxes) == 0 {
		return fmt.Errorf("Mailboxes must not be empty, set to the folders to harvest")
	}

	spamassassinSet := len(strings.TrimSpace(c.SpamassassinHost)) > 0
	rspamdSet := len(strings.TrimSpace(c.RspamdController)) > 0
	if rspamdSet && spamassassinSet {
		return fmt.Errorf("SpamassassinHost and RspamdController cannot be set at the same time")
	}

	if rspamdSet {
		if err := validateNonEmptyStringField(c.RspamdPassword, "RspamdPassword must be set if RspamdController is set"); err != nil {
			return err
		}
	}

	if c.MoveProcessed && c.DeleteProcessed {
		return fmt.Errorf("MoveProcessed and DeleteProcessed cannot be set at the same time")
	}

	if c.MoveProcessed {
		if err := validateNonEmptyStringField(c.ProcessedFolder, "ProcessedFolder must be set if MoveProcessed is set"); err != nil {
			return err
		}
	}

	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("invalid [filter] section: %w", err)
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}

// DecomposerOptions maps the [extract] section onto decomposer options.
func (e ExtractConfig) DecomposerOptions() []decomposer.ConfigFunc {
	configs := []decomposer.ConfigFunc{}
	if e.EmojiSupport != nil && !*e.EmojiSupport {
		configs = append(configs, decomposer.WithoutEmojiSupport())
	}
	if e.CleanBodyText {
		configs = append(configs, decomposer.CleanBodyText())
	}
	if e.FormatDatetime {
		configs = append(configs, decomposer.FormatDatetime())
	}
	if e.ReturnAttachments {
		configs = append(configs, decomposer.ReturnAttachments())
	}
	if e.SaveAttachments {
		configs = append(configs, decomposer.SaveAttachments(e.SaveAttachmentsPath))
	}
	if e.OnlyBasicHeaders != nil && !*e.OnlyBasicHeaders {
		configs = append(configs, decomposer.FullHeaders())
	}
	if e.SeparateSenderEmail {
		configs = append(configs, decomposer.SeparateSenderEmail())
	}
	if e.UnwrapReports {
		configs = append(configs, decomposer.UnwrapReports())
	}
	if e.VerifyArc {
		configs = append(configs, decomposer.VerifyArc())
	}
	return configs
}
