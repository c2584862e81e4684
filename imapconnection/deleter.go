// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
)

// ErrDeletedFlagPresent means a plain EXPUNGE would also remove messages flagged by someone else.
var ErrDeletedFlagPresent = errors.New("folder has previous items with delete flag set")

// expunge runs an expunge command and counts the messages it reports as removed.
func expunge(run func(ch chan uint32) error) (int, error) {
	out := make(chan uint32)
	done := make(chan error, 1)
	go func() {
		done <- run(out)
	}()

	expunged := 0
	for range out {
		expunged++
	}

	return expunged, <-done
}

func checkExpunged(expected, expunged int, err error) error {
	if err != nil {
		return fmt.Errorf("could not expunge mails: %w", err)
	}
	if expunged != expected {
		return fmt.Errorf("unexpected number of expunges, expected %d got %d", expected, expunged)
	}
	return nil
}

// uidPlusDeleter removes exactly the given uids with UID EXPUNGE.
type uidPlusDeleter struct {
	imapConn deletedFlaggerAndUidExpunger
}

func (u *uidPlusDeleter) delete(uids []uint32) error {
	seqset, err := u.imapConn.flagDeleted(uids)
	if err != nil {
		return fmt.Errorf("could not flag items as deleted: %w", err)
	}

	expunged, err := expunge(func(ch chan uint32) error {
		return u.imapConn.UidExpunge(seqset, ch)
	})
	return checkExpunged(len(uids), expunged, err)
}

func (u *uidPlusDeleter) deleteReady() (error, error) {
	return nil, nil
}

// compatibilityDeleter flags and expunges the whole folder, which is only safe while no other
// message carries the \Deleted flag.
type compatibilityDeleter struct {
	imapConn deleteFlaggerAndExpunger
}

func (c *compatibilityDeleter) delete(uids []uint32) error {
	notDeleteReadyReason, err := c.deleteReady()
	if err != nil {
		return fmt.Errorf("could not check for delete readiness: %w", err)
	}

	if notDeleteReadyReason != nil {
		return fmt.Errorf("folder is not ready for delete: %w", notDeleteReadyReason)
	}

	_, err = c.imapConn.flagDeleted(uids)
	if err != nil {
		return fmt.Errorf("could not set deleted flag: %w", err)
	}

	expunged, err := expunge(c.imapConn.Expunge)
	return checkExpunged(len(uids), expunged, err)
}

func (c *compatibilityDeleter) deleteReady() (error, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithFlags = []string{imap.DeletedFlag}
	ids, err := c.imapConn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could search for deleted in folder: %w", err)
	}

	if len(ids) > 0 {
		return fmt.Errorf("%w (%d messages)", ErrDeletedFlagPresent, len(ids)), nil
	}
	return nil, nil
}
