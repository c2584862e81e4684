// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import "github.com/emersion/go-imap"

//go:generate mockgen -destination=disposition_mocks_test.go -package=imapconnection -source disposition.go

// Interfaces used to delete or move processed messages. They live in one file because
// mockgen source mode cannot resolve embedded interfaces spread over several files.

type deleter interface {
	delete([]uint32) error
	deleteReady() (error, error)
}

type mover interface {
	move(uids []uint32, folder string) error
	moveReady() (error, error)
}

type deletedFlagger interface {
	flagDeleted(uids []uint32) (*imap.SeqSet, error)
}

type deletedFlaggerAndUidExpunger interface {
	deletedFlagger
	UidExpunge(seqSet *imap.SeqSet, ch chan uint32) error
}

type deleteFlaggerAndExpunger interface {
	deletedFlagger
	Expunge(ch chan uint32) error
	UidSearch(criteria *imap.SearchCriteria) (uids []uint32, err error)
}

type moveClient interface {
	UidMove(seqset *imap.SeqSet, dest string) error
}

type copyAndDeleteMoveClient interface {
	deleter
	UidCopy(seqset *imap.SeqSet, dest string) error
}
