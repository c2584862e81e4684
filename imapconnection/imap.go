// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"fmt"
	"io/ioutil"

	"github.com/CrawX/go-imap-harvest/domain"
	"github.com/CrawX/go-imap-harvest/log"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-move"
	"github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
	"github.com/sirupsen/logrus"
)

type ImapConnection struct {
	connection    *client.Client
	uidPlusClient *uidplus.Client
	mailDeleter   deleter
	mailMover     mover

	server string

	selectedFolder string

	l *logrus.Logger
}

func NewImapConnection(server string, user string, password string) (*ImapConnection, error) {
	imapClient, err := client.DialTLS(server, nil)
	if err != nil {
		return nil, fmt.Errorf("could not dial to imap: %w", err)
	}

	err = imapClient.Login(user, password)
	if err != nil {
		return nil, fmt.Errorf("could not login to imap: %w", err)
	}

	uidPlusClient := uidplus.NewClient(imapClient)
	uidPlusSupported, err := uidPlusClient.SupportUidPlus()
	if err != nil {
		return nil, fmt.Errorf("could not check for UIDPLUS support: %w", err)
	}

	moveClient := move.NewClient(imapClient)
	moveSupported, err := moveClient.SupportMove()
	if err != nil {
		return nil, fmt.Errorf("could not check for MOVE support: %w", err)
	}

	conn := &ImapConnection{
		connection:    imapClient,
		uidPlusClient: uidPlusClient,
		server:        server,
		l:             log.Logger(log.LOG_IMAP),
	}

	baseLogger := conn.l.WithFields(logrus.Fields{"server": server})
	baseLogger.Debug("Logged in to server")

	if uidPlusSupported {
		baseLogger.Debug("UIDPLUS supported on server, using UID delete")
		conn.mailDeleter = &uidPlusDeleter{
			imapConn: conn,
		}
	} else {
		baseLogger.Info("UIDPLUS not supported on server, falling back to flag&expunge")
		conn.mailDeleter = &compatibilityDeleter{
			imapConn: conn,
		}
	}

	if moveSupported {
		baseLogger.Debug("MOVE supported on server")
		conn.mailMover = &moveMover{
			moveClient: moveClient,
		}
	} else {
		baseLogger.Info("MOVE not supported on server, falling back to copy&delete")
		conn.mailMover = &compatibilityMover{
			imapConn: conn,
		}
	}

	return conn, nil
}

// sessionError classifies err. Once the client is logged out no further command can succeed.
func (ic *ImapConnection) sessionError(err error, format string, args ...interface{}) error {
	sentinel := domain.ErrSession
	if ic.connection.State() == imap.LogoutState {
		sentinel = domain.ErrSessionUnusable
	}
	return fmt.Errorf("%w: "+format+": %w", append(append([]interface{}{sentinel}, args...), err)...)
}

func (ic *ImapConnection) Select(folder string) (uint32, error) {
	m, err := ic.connection.Select(folder, false)
	if err != nil {
		return 0, ic.sessionError(err, "could not select folder %s", folder)
	}

	ic.selectedFolder = folder
	ic.l.WithFields(logrus.Fields{"folder": folder, "messages": m.Messages, "uidvalidity": m.UidValidity}).Debug("Selected folder")
	return m.UidValidity, nil
}

type rawUidSearch struct {
	criteria string
}

func (s *rawUidSearch) Command() *imap.Command {
	return &imap.Command{
		Name:      "UID SEARCH",
		Arguments: []interface{}{imap.RawString(s.criteria)},
	}
}

// Search sends criteria verbatim as UID SEARCH arguments.
func (ic *ImapConnection) Search(criteria string) ([]uint32, error) {
	resp := &responses.Search{}
	status, err := ic.connection.Execute(&rawUidSearch{criteria: criteria}, resp)
	if err == nil {
		err = status.Err()
	}
	if err != nil {
		return nil, ic.sessionError(err, "could not search %s for %s", ic.selectedFolder, criteria)
	}

	return resp.Ids, nil
}

// Fetch loads one complete message with BODY.PEEK[] so the \Seen flag stays untouched.
func (ic *ImapConnection) Fetch(uid uint32) ([]byte, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)

	fullBodySection := &imap.BodySectionName{
		Peek: true,
	}
	fetchItems := []imap.FetchItem{fullBodySection.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.UidFetch(seqset, fetchItems, messages)
	}()

	var rawBody []byte
	var readErr error
	for msg := range messages {
		r := msg.GetBody(fullBodySection)
		if r == nil || rawBody != nil {
			continue
		}
		rawBody, readErr = ioutil.ReadAll(r)
	}

	err := <-done
	if err != nil {
		return nil, ic.sessionError(err, "could not fetch uid %d", uid)
	}
	if readErr != nil {
		return nil, ic.sessionError(readErr, "could not read body of uid %d", uid)
	}
	if rawBody == nil {
		return nil, fmt.Errorf("%w: uid %d not found in %s", domain.ErrSession, uid, ic.selectedFolder)
	}

	return rawBody, nil
}

func (ic *ImapConnection) Close() error {
	return ic.connection.Logout()
}

func (ic *ImapConnection) Delete(uids []uint32) error {
	return ic.mailDeleter.delete(uids)
}

func (ic *ImapConnection) DeleteReady() (error, error) {
	return ic.mailDeleter.deleteReady()
}

func (ic *ImapConnection) delete(uids []uint32) error {
	return ic.mailDeleter.delete(uids)
}

func (ic *ImapConnection) deleteReady() (error, error) {
	return ic.mailDeleter.deleteReady()
}

func (ic *ImapConnection) flagDeleted(uids []uint32) (*imap.SeqSet, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	err := ic.connection.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil)
	if err != nil {
		return nil, fmt.Errorf("could set delete flag: %w", err)
	}

	return seqset, nil
}

func (ic *ImapConnection) UidExpunge(seqset *imap.SeqSet, ch chan uint32) error {
	return ic.uidPlusClient.UidExpunge(seqset, ch)
}

func (ic *ImapConnection) Expunge(ch chan uint32) error {
	return ic.connection.Expunge(ch)
}

func (ic *ImapConnection) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	return ic.connection.UidSearch(criteria)
}

func (ic *ImapConnection) UidCopy(seqset *imap.SeqSet, dest string) error {
	return ic.connection.UidCopy(seqset, dest)
}

func (ic *ImapConnection) MoveReady() (error, error) {
	return ic.mailMover.moveReady()
}

// Move moves uids of the selected folder to folder, which must be a different one.
func (ic *ImapConnection) Move(uids []uint32, folder string) error {
	if folder == ic.selectedFolder {
		return fmt.Errorf("cannot move mails of %s into itself", folder)
	}
	return ic.mailMover.move(uids, folder)
}
