// SPDX-License-Identifier: GPL-3.0-or-later
package attachment

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/CrawX/go-imap-harvest/domain"
)

const DefaultDirectory = "attachments"

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if len(dir) == 0 {
		dir = DefaultDirectory
	}
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes the attachment as <timestamp>_<name> below the store directory and returns the
// written path.
func (s *Store) Save(file *domain.AttachmentRecord) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: could not create %s: %v", domain.ErrAttachmentWrite, s.dir, err)
	}

	target := filepath.Join(s.dir, file.Timestamp+"_"+BaseName(file.FileName))
	if err := ioutil.WriteFile(target, file.Data, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAttachmentWrite, err)
	}
	return target, nil
}

// Apply runs the extension policy over all files of one message before anything is written.
// A single violation rejects the whole set. With a nil store nothing is written.
func Apply(files []*domain.AttachmentRecord, date string, store *Store) ([]string, error) {
	for _, f := range files {
		if err := CheckExtension(f.FileName); err != nil {
			return nil, err
		}
	}

	label := TimestampLabel(date)
	for _, f := range files {
		f.Timestamp = label
	}
	if store == nil {
		return nil, nil
	}

	saved := []string{}
	for _, f := range files {
		path, err := store.Save(f)
		if err != nil {
			return saved, err
		}
		f.Path = path
		saved = append(saved, path)
	}
	return saved, nil
}
