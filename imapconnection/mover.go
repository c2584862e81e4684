// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"fmt"

	"github.com/emersion/go-imap"
)

func uidSet(uids []uint32) *imap.SeqSet {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	return seqset
}

// moveTarget returns nil for an empty batch, there is nothing to send to the server then.
func moveTarget(uids []uint32, folder string) (*imap.SeqSet, error) {
	if len(folder) == 0 {
		return nil, fmt.Errorf("no folder to move processed mails to")
	}
	if len(uids) == 0 {
		return nil, nil
	}
	return uidSet(uids), nil
}

// moveMover uses the MOVE extension and is always ready.
type moveMover struct {
	moveClient moveClient
}

func (m *moveMover) move(uids []uint32, folder string) error {
	seqset, err := moveTarget(uids, folder)
	if err != nil || seqset == nil {
		return err
	}

	err = m.moveClient.UidMove(seqset, folder)
	if err != nil {
		return fmt.Errorf("could not move %d mails to %s: %w", len(uids), folder, err)
	}
	return nil
}

func (m *moveMover) moveReady() (error, error) {
	return nil, nil
}

// compatibilityMover copies and then deletes, so it is ready whenever deletion is. If the
// delete fails after the copy the harvested mails exist in both folders; a later harvest of
// the source folder skips them by hash.
type compatibilityMover struct {
	imapConn copyAndDeleteMoveClient
}

func (c *compatibilityMover) move(uids []uint32, folder string) error {
	seqset, err := moveTarget(uids, folder)
	if err != nil || seqset == nil {
		return err
	}

	notDeleteReadyReason, err := c.moveReady()
	if err != nil {
		return fmt.Errorf("could not check for delete readiness to move: %w", err)
	}
	if notDeleteReadyReason != nil {
		return fmt.Errorf("folder is not ready for delete, cannot move (copy&delete): %w", notDeleteReadyReason)
	}

	err = c.imapConn.UidCopy(seqset, folder)
	if err != nil {
		return fmt.Errorf("could not copy mails to %s: %w", folder, err)
	}

	err = c.imapConn.delete(uids)
	if err != nil {
		return fmt.Errorf("mails were copied to %s but not deleted: %w", folder, err)
	}

	return nil
}

func (c *compatibilityMover) moveReady() (error, error) {
	return c.imapConn.deleteReady()
}
