// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"context"
	"embed"
	"fmt"

	"github.com/CrawX/go-imap-harvest/domain"
	"github.com/CrawX/go-imap-harvest/log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrations embed.FS

type Persistence struct {
	db *sqlx.DB
	l  *logrus.Logger
}

func NewPersistence(datasource string) (*Persistence, error) {
	db, err := sqlx.Connect("sqlite3", datasource)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := log.Logger(log.LOG_PERSISTENCE)
	l.WithField("file", datasource).Info("Connected")

	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA synchronous=normal`, `PRAGMA foreign_keys=ON`} {
		_, err = db.Exec(pragma)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("could not execute %s: %w", pragma, err)
		}
	}

	migrationSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "sql",
	}
	appliedMigrations, err := migrate.Exec(db.DB, "sqlite3", migrationSource, migrate.Up)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate to newest version: %w", err)
	}

	l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return &Persistence{
		db: db,
		l:  l,
	}, nil
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

func (p *Persistence) AllFolders() ([]*domain.ImapFolder, error) {
	dbFolders := []struct {
		Name        string
		UidValidity uint32
	}{}

	err := p.db.Select(
		&dbFolders,
		`SELECT name, uidvalidity from folders ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	folders := []*domain.ImapFolder{}
	for _, f := range dbFolders {
		folders = append(
			folders,
			&domain.ImapFolder{
				Name:        f.Name,
				UidValidity: f.UidValidity,
			},
		)
	}

	p.l.WithField("Count", len(folders)).Debug("Found folders")

	return folders, nil
}

func (p *Persistence) SaveFolder(name string, uidValidity uint32) error {
	_, err := p.db.Exec(
		"INSERT OR REPLACE INTO folders (name, uidvalidity) VALUES (?, ?)",
		name,
		uidValidity,
	)

	if err != nil {
		return fmt.Errorf("could not save folder: %w", err)
	}

	p.l.WithFields(logrus.Fields{"Name": name, "UidValidity": uidValidity}).Debug("Persisted folder")
	return nil
}

// HashesExist reports which of the given identity hashes are already stored for folder.
func (p *Persistence) HashesExist(folder string, mailIdHashes []string) (map[string]bool, error) {
	result := map[string]bool{}
	if len(mailIdHashes) == 0 {
		return result, nil
	}

	qry, args, err := sqlx.Named(
		"SELECT mailidhash from messages WHERE foldername = :folder AND mailidhash IN (:hashes)",
		map[string]interface{}{
			"folder": folder,
			"hashes": mailIdHashes,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("could not create query: %w", err)
	}

	qry, args, err = sqlx.In(qry, args...)
	if err != nil {
		return nil, fmt.Errorf("could not replace IN in query: %w", err)
	}

	hashes := []string{}
	err = p.db.Select(
		&hashes,
		p.db.Rebind(qry),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	for _, hash := range hashes {
		result[hash] = true
	}

	return result, nil
}

// SaveMessages stores messages and their attachments in one transaction.
func (p *Persistence) SaveMessages(messages []domain.SaveMessage) error {
	tx, err := p.db.BeginTxx(context.TODO(), nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}

	messageStmt, err := tx.Prepare(
		"INSERT INTO messages(foldername, uid, mailidhash, messageid, subject, sender, date, body, isspam, score, arc) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not prepare statement: %w", err))
	}
	defer messageStmt.Close()

	attachmentStmt, err := tx.Prepare(
		"INSERT INTO attachments(message, filename, path, size) VALUES(?, ?, ?, ?)",
	)
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not prepare statement: %w", err))
	}
	defer attachmentStmt.Close()

	for _, m := range messages {
		result, err := messageStmt.Exec(
			m.FolderName, m.Uid, m.MailIdHash, m.MessageId, m.Subject, m.Sender, m.Date, m.Body, m.IsSpam, m.Score, m.Arc,
		)
		if err != nil {
			return txEnd(tx, fmt.Errorf("could not save message %d: %w", m.Uid, err))
		}

		if len(m.Attachments) == 0 {
			continue
		}

		id, err := result.LastInsertId()
		if err != nil {
			return txEnd(tx, fmt.Errorf("could not get id of message %d: %w", m.Uid, err))
		}

		for _, a := range m.Attachments {
			_, err = attachmentStmt.Exec(id, a.FileName, a.Path, a.Size)
			if err != nil {
				return txEnd(tx, fmt.Errorf("could not save attachment %s: %w", a.FileName, err))
			}
		}
	}

	p.l.WithField("count", len(messages)).Debug("Persisted messages")
	return txEnd(tx, nil)
}

func txEnd(tx *sqlx.Tx, err error) error {
	if err == nil {
		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("could not commit tx: %w", err)
		}
	} else {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			errStr := err.Error()
			return fmt.Errorf("%s, could not rollback tx: %w", errStr, rollbackErr)
		} else {
			return err
		}
	}

	return nil
}
