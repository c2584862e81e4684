// SPDX-License-Identifier: GPL-3.0-or-later
package harvester

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CrawX/go-imap-harvest/decomposer"
	"github.com/CrawX/go-imap-harvest/domain"
	"github.com/CrawX/go-imap-harvest/log"
	"github.com/CrawX/go-imap-harvest/mail"

	"github.com/sirupsen/logrus"
)

type Harvester struct {
	persistence    domain.Persistence
	imapConnection domain.ImapConnector
	decomposer     *decomposer.Decomposer

	configuration *configuration

	l *logrus.Logger
}

func NewHarvester(persistence domain.Persistence, imapConnection domain.ImapConnector, d *decomposer.Decomposer, configFunc ...ConfigFunc) (*Harvester, error) {
	config := &configuration{}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Harvester{
		persistence:    persistence,
		imapConnection: imapConnection,
		decomposer:     d,
		configuration:  config,
		l:              log.Logger(log.LOG_HARVESTER),
	}, nil
}

// Harvest decomposes the messages matching expression in every folder, stores those not seen
// before and then moves or deletes the successfully processed ones.
func (h *Harvester) Harvest(folders []string, expression string) error {
	knownFolders, err := h.persistence.AllFolders()
	if err != nil {
		return fmt.Errorf("could not list known folders: %w", err)
	}

	for _, f := range folders {
		err := h.harvestFolder(f, expression, knownFolders)
		if err != nil {
			return fmt.Errorf("could not harvest %s: %w", f, err)
		}
	}

	return nil
}

func (h *Harvester) harvestFolder(f, expression string, knownFolders []*domain.ImapFolder) error {
	start := time.Now()
	seq, err := h.decomposer.Decompose(f, expression)
	if err != nil {
		return fmt.Errorf("could not search folder: %w", err)
	}
	defer seq.Close()

	folderLogger := h.l.WithFields(logrus.Fields{"folder": f})
	for _, known := range knownFolders {
		if known.Name == f && known.UidValidity != seq.UidValidity() {
			folderLogger.WithFields(logrus.Fields{"old": known.UidValidity, "new": seq.UidValidity()}).Info("UIDVALIDITY changed, uids are renumbered")
		}
	}

	ready, err := h.dispositionReady(folderLogger)
	if err != nil {
		return err
	}

	if seq.Len() == 0 {
		folderLogger.Info("Folder contains no matching mails")
		return h.persistence.SaveFolder(f, seq.UidValidity())
	}
	folderLogger.WithFields(logrus.Fields{"matches": seq.Len()}).Info("Found mails to harvest")

	messages := []*domain.DecodedMessage{}
	processed := []uint32{}
	failed := 0
	for seq.Next() {
		item := seq.Item()
		if item.Err != nil {
			failed++
			h.logItemError(folderLogger, item)
		}
		if item.Message == nil {
			continue
		}

		messages = append(messages, item.Message)
		if item.Err == nil {
			processed = append(processed, item.Uid)
		}
	}
	if err := seq.Err(); err != nil {
		return fmt.Errorf("harvest aborted: %w", err)
	}

	saved, err := h.saveNew(f, messages)
	if err != nil {
		return err
	}

	err = h.persistence.SaveFolder(f, seq.UidValidity())
	if err != nil {
		return fmt.Errorf("could not save uidvalidity for %s: %w", f, err)
	}

	if ready && len(processed) > 0 {
		err = h.dispose(folderLogger, processed)
		if err != nil {
			return err
		}
	}

	folderLogger.WithFields(logrus.Fields{
		"duration":  time.Since(start),
		"decoded":   len(messages),
		"new":       saved,
		"failed":    failed,
		"processed": len(processed),
	}).Info("Harvested folder")
	return nil
}

// dispositionReady reports whether processed mails may be moved or deleted in the selected folder.
func (h *Harvester) dispositionReady(folderLogger *logrus.Entry) (bool, error) {
	if h.configuration.DryRun || (!h.configuration.DeleteProcessed && !h.configuration.MoveProcessed) {
		return false, nil
	}

	var notReadyReason error
	var err error
	if h.configuration.DeleteProcessed {
		notReadyReason, err = h.imapConnection.DeleteReady()
		if err != nil {
			return false, fmt.Errorf("could not check for delete readiness: %w", err)
		}
	} else {
		notReadyReason, err = h.imapConnection.MoveReady()
		if err != nil {
			return false, fmt.Errorf("could not check for move readiness: %w", err)
		}
	}

	if notReadyReason != nil {
		folderLogger.WithFields(logrus.Fields{"error": notReadyReason}).Warn("Folder is not ready for moving or deleting, keeping processed mails")
		return false, nil
	}
	return true, nil
}

func (h *Harvester) dispose(folderLogger *logrus.Entry, uids []uint32) error {
	if h.configuration.MoveProcessed {
		folderLogger.WithFields(logrus.Fields{"processed": len(uids), "destination": h.configuration.ProcessedFolder}).Info("Moving processed mails")
		err := h.imapConnection.Move(uids, h.configuration.ProcessedFolder)
		if err != nil {
			return fmt.Errorf("could not move processed mails: %w", err)
		}
		return nil
	}

	folderLogger.WithFields(logrus.Fields{"processed": len(uids)}).Info("Deleting processed mails")
	err := h.imapConnection.Delete(uids)
	if err != nil {
		return fmt.Errorf("could not delete processed mails: %w", err)
	}
	return nil
}

func (h *Harvester) logItemError(folderLogger *logrus.Entry, item *decomposer.Item) {
	entry := folderLogger.WithFields(logrus.Fields{"uid": item.Uid, "error": item.Err})
	if item.Message != nil {
		subject, _ := item.Message.Headers.Get("Subject")
		entry = entry.WithField("subject", mail.ShortSubject(subject))
	}

	switch {
	case errors.Is(item.Err, domain.ErrSecurityPolicyViolation):
		entry.Warn("Attachments rejected by policy")
	case errors.Is(item.Err, domain.ErrAttachmentWrite):
		entry.Warn("Could not store attachments")
	default:
		entry.Error("Could not decompose mail")
	}
}

// saveNew stores the messages whose identity hash is not yet known for folder.
func (h *Harvester) saveNew(f string, messages []*domain.DecodedMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	hashes := make([]string, 0, len(messages))
	for _, m := range messages {
		hashes = append(hashes, m.MailIdHash)
	}
	known, err := h.persistence.HashesExist(f, hashes)
	if err != nil {
		return 0, fmt.Errorf("could not check for known mails: %w", err)
	}

	saveMessages := []domain.SaveMessage{}
	for _, m := range messages {
		if known[m.MailIdHash] {
			continue
		}
		known[m.MailIdHash] = true
		saveMessages = append(saveMessages, toSaveMessage(f, m))
	}

	if len(saveMessages) == 0 {
		return 0, nil
	}

	err = h.persistence.SaveMessages(saveMessages)
	if err != nil {
		return 0, fmt.Errorf("could not save mails: %w", err)
	}
	return len(saveMessages), nil
}

func toSaveMessage(folder string, m *domain.DecodedMessage) domain.SaveMessage {
	headers := m.Headers.Map()
	sender := headers["From"]
	if address, ok := headers["From"+decomposer.AddressSuffix]; ok {
		sender = address
	}

	saveMessage := domain.SaveMessage{
		FolderName: folder,
		Uid:        m.Uid,
		MailIdHash: m.MailIdHash,
		MessageId:  headers["Message-ID"],
		Subject:    headers["Subject"],
		Sender:     sender,
		Date:       headers["Date"],
		Body:       m.Body,
	}

	if m.Verdict != nil && m.Verdict.Error == nil {
		isSpam, score := m.Verdict.IsSpam, m.Verdict.Score
		saveMessage.IsSpam = &isSpam
		saveMessage.Score = &score
	}

	if m.Arc != nil {
		saveMessage.Arc = string(m.Arc.Status)
	}

	if len(m.Attachments) > 0 {
		for _, a := range m.Attachments {
			saveMessage.Attachments = append(saveMessage.Attachments, domain.SaveAttachment{
				FileName: a.FileName,
				Path:     a.Path,
				Size:     len(a.Data),
			})
		}
	} else {
		for _, path := range m.SavedFiles {
			size := 0
			if info, err := os.Stat(path); err == nil {
				size = int(info.Size())
			}
			saveMessage.Attachments = append(saveMessage.Attachments, domain.SaveAttachment{
				FileName: filepath.Base(path),
				Path:     path,
				Size:     size,
			})
		}
	}

	return saveMessage
}
