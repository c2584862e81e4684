// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/persistence.go -package=mocks . Persistence
type ImapFolder struct {
	Name        string
	UidValidity uint32
}

type SaveMessage struct {
	FolderName  string
	Uid         uint32
	MailIdHash  string
	MessageId   string
	Subject     string
	Sender      string
	Date        string
	Body        string
	IsSpam      *bool
	Score       *float64
	Arc         string // ArcStatus, empty if ARC was not verified
	Attachments []SaveAttachment
}

type SaveAttachment struct {
	FileName string
	Path     string
	Size     int
}

type Persistence interface {
	Close() error
	AllFolders() ([]*ImapFolder, error)
	SaveFolder(name string, uidValidity uint32) error
	HashesExist(folder string, mailIdHashes []string) (map[string]bool, error)
	SaveMessages(messages []SaveMessage) error
}
