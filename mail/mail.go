// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	stdmail "net/mail"
	"strings"

	"github.com/CrawX/go-imap-harvest/domain"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// AttachedFile is a MIME part with an attachment disposition and a file name.
type AttachedFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Parsed struct {
	Header      message.Header
	Body        string
	Attachments []*AttachedFile
}

// Parse reads a raw message and walks its MIME tree once. Text parts are decoded and
// concatenated into Body in tree order, attachment parts are collected with their content.
func Parse(rawMail []byte) (*Parsed, error) {
	entity, err := message.Read(bytes.NewReader(rawMail))
	if err != nil && !isUnknownContent(err) {
		return nil, fmt.Errorf("%w: could not parse mail: %v", domain.ErrMalformedMessage, err)
	}

	parsed := &Parsed{Header: entity.Header}
	body := &strings.Builder{}
	err = entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !isUnknownContent(err) {
			return err
		}

		mediaType, params, _ := part.Header.ContentType()
		if strings.HasPrefix(mediaType, "multipart/") {
			return nil
		}

		disposition, dispositionParams, _ := part.Header.ContentDisposition()
		if strings.EqualFold(disposition, "attachment") {
			fileName := dispositionParams["filename"]
			if len(fileName) == 0 {
				fileName = params["name"]
			}
			if len(fileName) == 0 {
				return nil
			}

			data, err := ioutil.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("could not read attachment %s: %w", fileName, err)
			}
			parsed.Attachments = append(parsed.Attachments, &AttachedFile{
				FileName:    DecodeHeaderValue(fileName),
				ContentType: mediaType,
				Data:        data,
			})
			return nil
		}

		if len(mediaType) == 0 {
			mediaType = "text/plain"
		}
		if mediaType != "text/plain" && mediaType != "text/html" {
			return nil
		}

		content, err := ioutil.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("could not read %s part: %w", mediaType, err)
		}
		text := strings.ToValidUTF8(string(content), "")
		if mediaType == "text/html" {
			text = HtmlToText(text)
		}
		if body.Len() > 0 && !strings.HasSuffix(body.String(), "\n") {
			body.WriteByte('\n')
		}
		body.WriteString(text)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: could not walk mime parts: %v", domain.ErrMalformedMessage, err)
	}

	parsed.Body = body.String()
	return parsed, nil
}

func isUnknownContent(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// IdentityHash hashes the Message-Id and Received headers. The hash identifies a mail across
// folders and UIDVALIDITY changes.
func IdentityHash(header message.Header) (string, error) {
	messageIdHeader := values(header, "Message-Id")
	receivedHeader := values(header, "Received")
	if len(receivedHeader) == 0 && len(messageIdHeader) == 0 {
		return "", fmt.Errorf("Received and Message-Id header header not found")
	}

	return hash([][]string{messageIdHeader, receivedHeader})
}

func UnwrapSpamassassinReport(rawMail []byte) ([]byte, error) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(rawMail))
	if err != nil {
		return nil, fmt.Errorf("could not parse mail: %w", err)
	}

	contentType := msg.Header.Get("Content-Type")
	if len(contentType) == 0 {
		return rawMail, nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return rawMail, nil
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return rawMail, nil
	}

	saHeaders := 0
	for key := range msg.Header {
		if strings.Contains(key, "X-Spam-") {
			saHeaders++
		}
	}

	if saHeaders < 2 {
		return rawMail, nil
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return rawMail, nil
		}
		if err != nil {
			return nil, fmt.Errorf("unexpected error while unwrapping: %w", err)
		}

		if strings.Contains(p.Header.Get("Content-Type"), "x-spam-type=original") {
			unwrapped, err := ioutil.ReadAll(p)
			if err != nil {
				return nil, fmt.Errorf("unexpected error while reading wrapped body: %w", err)
			}

			return unwrapped, nil
		}
	}
}

func ShortSubject(subject string) string {
	if len([]rune(subject)) > 30 {
		subject = string([]rune(subject)[:30]) + "..."
	}
	return subject
}

func hash(input [][]string) (string, error) {
	sha := sha256.New()
	for _, i := range input {
		for _, ii := range i {
			_, err := sha.Write([]byte(ii))
			if err != nil {
				return "", fmt.Errorf("could not hash: %w", err)
			}
		}
	}

	return fmt.Sprintf("%x", sha.Sum(nil)), nil
}

// ContentHash identifies a mail without Message-Id and Received headers by its raw bytes.
func ContentHash(rawMail []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(rawMail))
}
