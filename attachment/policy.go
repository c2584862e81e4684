// SPDX-License-Identifier: GPL-3.0-or-later
package attachment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/CrawX/go-imap-harvest/domain"
)

var AcceptedExtensions = []string{
	".jpg", ".png", ".gif", ".txt", ".csv", ".pdf", ".xlsx", ".doc", ".jpeg", ".pptx", ".docx",
}

var BlockedExtensions = []string{".7z", ".zip", ".tar", ".gzip"}

func contains(list []string, ext string) bool {
	for _, l := range list {
		if l == ext {
			return true
		}
	}
	return false
}

// CheckExtension only lets through names whose extension is on the accept list. Blocked and
// unknown extensions are both violations.
func CheckExtension(fileName string) error {
	ext := strings.ToLower(filepath.Ext(BaseName(fileName)))
	if contains(BlockedExtensions, ext) {
		return fmt.Errorf("%w: blocked extension %q on %s", domain.ErrSecurityPolicyViolation, ext, fileName)
	}
	if !contains(AcceptedExtensions, ext) {
		return fmt.Errorf("%w: unknown extension %q on %s", domain.ErrSecurityPolicyViolation, ext, fileName)
	}
	return nil
}

// BaseName drops any directory part, with either slash style, from an attachment name.
func BaseName(fileName string) string {
	return filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
}

const Undated = "undated"

var labelReplacer = strings.NewReplacer(" ", "_", ":", "-", "/", "-", `\`, "-")

// TimestampLabel turns a date header value into a file name prefix.
func TimestampLabel(date string) string {
	date = strings.TrimSpace(date)
	if len(date) == 0 {
		return Undated
	}
	return labelReplacer.Replace(date)
}
