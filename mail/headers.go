// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"mime"
	"strings"

	"github.com/CrawX/go-imap-harvest/domain"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
)

var BasicHeaders = []string{
	"Subject",
	"From",
	"To",
	"CC",
	"BCC",
	"Date",
	"Reply-To",
	"Message-ID",
}

var FullHeaders = append(append([]string{}, BasicHeaders...),
	"Content-Type",
	"MIME-Version",
	"Content-Transfer-Encoding",
	"Content-Disposition",
	"Content-Description",
	"Content-Language",
	"Content-Location",
	"Received",
	"X-Priority",
	"X-Mailer",
	"X-Original-Sender",
	"X-Sender",
	"X-MS-TNEF-Correlator",
	"Thread-Index",
	"In-Reply-To",
	"References",
	ArcAuthenticationResultsHeader,
	ArcMessageSignatureHeader,
	ArcSealHeader,
)

// SenderHeaders are split into display name and address on request.
var SenderHeaders = []string{"From", "CC", "BCC", "Reply-To", "To"}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: charset.Reader,
}

// ExtractHeaders decodes the basic or full header set. Headers missing from the mail are left
// out, repeated fields are joined by newlines.
func ExtractHeaders(header message.Header, full bool) domain.HeaderSet {
	names := BasicHeaders
	if full {
		names = FullHeaders
	}

	headers := domain.HeaderSet{}
	for _, name := range names {
		raw := values(header, name)
		if len(raw) == 0 {
			continue
		}

		decoded := make([]string, 0, len(raw))
		for _, v := range raw {
			decoded = append(decoded, DecodeHeaderValue(v))
		}

		value := strings.Join(decoded, "\n")
		if name == "Message-ID" {
			value = NormalizeMessageId(value)
		}
		headers = append(headers, domain.Header{Name: name, Value: value})
	}

	headers.Sort()
	return headers
}

// DecodeHeaderValue decodes RFC 2047 encoded words and returns the raw value if that fails.
func DecodeHeaderValue(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// NormalizeMessageId strips one pair of enclosing angle brackets.
func NormalizeMessageId(messageId string) string {
	messageId = strings.TrimSpace(messageId)
	messageId = strings.TrimPrefix(messageId, "<")
	return strings.TrimSuffix(messageId, ">")
}

func values(header message.Header, key string) []string {
	result := []string{}
	fields := header.FieldsByKey(key)
	for fields.Next() {
		result = append(result, strings.TrimSpace(fields.Value()))
	}
	return result
}
