// SPDX-License-Identifier: GPL-3.0-or-later
package decomposer

import (
	"errors"

	"github.com/CrawX/go-imap-harvest/domain"

	"github.com/sirupsen/logrus"
)

// Item is the outcome for one uid. Err carries problems local to this message. Message is
// still set for attachment errors but nil for fetch and parse errors.
type Item struct {
	Uid     uint32
	Message *domain.DecodedMessage
	Err     error
}

// Sequence is a pull iterator over the uids found by one search:
//
//	seq, err := d.Decompose("INBOX", expression)
//	...
//	defer seq.Close()
//	for seq.Next() {
//		item := seq.Item()
//	}
//	if err := seq.Err(); err != nil {
//		...
//	}
//
// A Sequence is not safe for concurrent use.
type Sequence struct {
	decomposer  *Decomposer
	mailbox     string
	uids        []uint32
	uidValidity uint32
	count       int

	pos    int
	item   *Item
	err    error
	closed bool
}

// Next fetches and decodes the next message. It returns false once all uids are consumed, the
// session became unusable or the sequence was closed.
func (s *Sequence) Next() bool {
	if s.closed || s.err != nil || s.pos >= len(s.uids) {
		s.release()
		return false
	}

	uid := s.uids[s.pos]
	s.pos++

	item := s.decomposer.decompose(uid)
	if errors.Is(item.Err, domain.ErrSessionUnusable) {
		s.decomposer.l.WithFields(logrus.Fields{"mailbox": s.mailbox, "uid": uid, "error": item.Err}).Error("Session unusable, stopping")
		s.err = item.Err
		s.release()
		return false
	}

	s.item = item
	return true
}

// Item returns the result of the last successful Next call.
func (s *Sequence) Item() *Item {
	return s.item
}

// Err returns the error that ended the sequence early, if any.
func (s *Sequence) Err() error {
	return s.err
}

// Len is the number of uids the search matched.
func (s *Sequence) Len() int {
	return s.count
}

func (s *Sequence) Mailbox() string {
	return s.mailbox
}

func (s *Sequence) UidValidity() uint32 {
	return s.uidValidity
}

// Close ends the iteration. The selected mailbox stays selected on the session.
func (s *Sequence) Close() {
	s.closed = true
	s.release()
}

func (s *Sequence) release() {
	s.item = nil
	s.uids = nil
}
