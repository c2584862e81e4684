// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/imap.go -package=mocks . MailboxSession,ImapConnector

// MailboxSession is the part of an IMAP session the decomposition needs. The session keeps the
// selected mailbox as mutable state, so one session must not be driven by two callers at once.
type MailboxSession interface {
	// Select makes mailbox the current mailbox and returns its UIDVALIDITY.
	Select(mailbox string) (uint32, error)
	// Search runs a UID SEARCH with the given criteria in the selected mailbox.
	Search(criteria string) ([]uint32, error)
	// Fetch returns the complete raw message for uid without setting the \Seen flag.
	Fetch(uid uint32) ([]byte, error)
}

type ImapConnector interface {
	MailboxSession

	DeleteReady() (error, error)
	Delete(uids []uint32) error
	MoveReady() (error, error)
	Move(uids []uint32, folder string) error

	Close() error
}
