// SPDX-License-Identifier: GPL-3.0-or-later
package decomposer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CrawX/go-imap-harvest/attachment"
	"github.com/CrawX/go-imap-harvest/domain"
	"github.com/CrawX/go-imap-harvest/filter"
	"github.com/CrawX/go-imap-harvest/log"
	"github.com/CrawX/go-imap-harvest/mail"

	"github.com/sirupsen/logrus"
)

// AddressSuffix names the header holding the address part of a split sender header.
const AddressSuffix = "-Address"

type Decomposer struct {
	session       domain.MailboxSession
	configuration *configuration
	store         *attachment.Store

	l *logrus.Logger
}

func NewDecomposer(session domain.MailboxSession, configFunc ...ConfigFunc) (*Decomposer, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}

	config := defaultConfiguration()
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	d := &Decomposer{
		session:       session,
		configuration: config,
		l:             log.Logger(log.LOG_DECOMPOSER),
	}
	if config.SaveAttachments {
		d.store = attachment.NewStore(config.AttachmentPath)
	}
	return d, nil
}

// Decompose selects mailbox, searches it once with expression and returns a sequence that
// fetches and decodes one message per Next call. An empty expression matches all messages.
func (d *Decomposer) Decompose(mailbox, expression string) (*Sequence, error) {
	if len(strings.TrimSpace(expression)) == 0 {
		expression = filter.AllMessages
	}

	uidValidity, err := d.session.Select(mailbox)
	if err != nil {
		return nil, sessionError(err, "could not select %s", mailbox)
	}

	uids, err := d.session.Search(expression)
	if err != nil {
		return nil, sessionError(err, "could not search %s for %s", mailbox, expression)
	}

	d.l.WithFields(logrus.Fields{"mailbox": mailbox, "criteria": expression, "matches": len(uids)}).Debug("Searched mailbox")
	return &Sequence{
		decomposer:  d,
		mailbox:     mailbox,
		uids:        uids,
		uidValidity: uidValidity,
		count:       len(uids),
	}, nil
}

func sessionError(err error, format string, args ...interface{}) error {
	if errors.Is(err, domain.ErrSession) || errors.Is(err, domain.ErrSessionUnusable) {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	return fmt.Errorf("%w: "+format+": %w", append(append([]interface{}{domain.ErrSession}, args...), err)...)
}

func (d *Decomposer) decompose(uid uint32) *Item {
	item := &Item{Uid: uid}

	rawMail, err := d.session.Fetch(uid)
	if err != nil {
		item.Err = sessionError(err, "could not fetch uid %d", uid)
		return item
	}

	if d.configuration.UnwrapReports {
		unwrapped, err := mail.UnwrapSpamassassinReport(rawMail)
		if err != nil {
			d.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Debug("Could not unwrap report, using mail as is")
		} else {
			rawMail = unwrapped
		}
	}

	var verdict *domain.ContentVerdict
	if d.configuration.Classifier != nil {
		verdict = d.configuration.Classifier.Check(rawMail)
		if verdict.Error != nil {
			d.l.WithFields(logrus.Fields{"uid": uid, "error": verdict.Error}).Warn("Could not classify mail")
		}
	}

	parsed, err := mail.Parse(rawMail)
	if err != nil {
		item.Err = fmt.Errorf("could not decode uid %d: %w", uid, err)
		return item
	}

	hash, err := mail.IdentityHash(parsed.Header)
	if err != nil {
		d.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Debug("Falling back to content hash")
		hash = mail.ContentHash(rawMail)
	}

	message := &domain.DecodedMessage{
		Uid:        uid,
		MailIdHash: hash,
		Headers:    mail.ExtractHeaders(parsed.Header, d.configuration.FullHeaders),
		Body:       parsed.Body,
		Verdict:    verdict,
	}
	if d.configuration.VerifyArc {
		message.Arc = mail.VerifyArc(parsed.Header)
		if message.Arc.Status == domain.ArcFail {
			d.l.WithFields(logrus.Fields{"uid": uid, "reason": message.Arc.Reason}).Warn("ARC verification failed")
		}
	}
	d.rewrite(message)
	item.Message = message

	if len(parsed.Attachments) > 0 {
		item.Err = d.attachments(message, parsed.Attachments)
	}

	subject, _ := message.Headers.Get("Subject")
	d.l.WithFields(logrus.Fields{"uid": uid, "subject": mail.ShortSubject(subject), "attachments": len(parsed.Attachments)}).Trace("Decomposed mail")
	return item
}

// rewrite applies the best-effort steps. A failing step leaves its value untouched.
func (d *Decomposer) rewrite(message *domain.DecodedMessage) {
	fields := logrus.Fields{"uid": message.Uid}

	if d.configuration.EmojiSupport {
		message.Body = mail.ReplaceEmoji(message.Body).Value
	}

	if d.configuration.FormatDate {
		if date, ok := message.Headers.Get("Date"); ok {
			formatted := mail.FormatDate(date)
			if formatted.Ok() {
				message.Headers.Set("Date", formatted.Value)
			} else {
				d.l.WithFields(fields).WithField("error", formatted.Err).Trace("Keeping date")
			}
		}
	}

	if d.configuration.SeparateSender {
		for _, name := range mail.SenderHeaders {
			value, ok := message.Headers.Get(name)
			if !ok {
				continue
			}

			sender := mail.SplitSender(value)
			if sender.Err != nil {
				d.l.WithFields(fields).WithFields(logrus.Fields{"header": name, "error": sender.Err}).Trace("Keeping sender")
				continue
			}
			message.Headers.Set(name, sender.Name)
			message.Headers.Set(name+AddressSuffix, sender.Address)
		}
	}

	message.Body = mail.NormalizeLinks(message.Body).Value

	if d.configuration.CleanBody {
		message.Body = mail.CleanBody(message.Body).Value
	}

	message.Headers.Sort()
}

func (d *Decomposer) attachments(message *domain.DecodedMessage, files []*mail.AttachedFile) error {
	records := make([]*domain.AttachmentRecord, 0, len(files))
	for _, f := range files {
		records = append(records, &domain.AttachmentRecord{
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Data:        f.Data,
		})
	}

	date, _ := message.Headers.Get("Date")
	saved, err := attachment.Apply(records, date, d.store)
	message.SavedFiles = saved
	if err != nil {
		d.l.WithFields(logrus.Fields{"uid": message.Uid, "error": err}).Debug("Attachment step failed")
		return fmt.Errorf("could not process attachments of uid %d: %w", message.Uid, err)
	}

	if d.configuration.ReturnAttachments {
		message.Attachments = records
	}
	return nil
}
