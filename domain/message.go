// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"sort"
	"strings"
)

type Header struct {
	Name  string
	Value string
}

// HeaderSet holds decoded header values sorted by name. Use Set to keep the ordering.
type HeaderSet []Header

func (hs HeaderSet) Get(name string) (string, bool) {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func (hs *HeaderSet) Set(name, value string) {
	for i := range *hs {
		if strings.EqualFold((*hs)[i].Name, name) {
			(*hs)[i].Value = value
			return
		}
	}

	*hs = append(*hs, Header{Name: name, Value: value})
	hs.Sort()
}

func (hs *HeaderSet) Del(name string) {
	for i := range *hs {
		if strings.EqualFold((*hs)[i].Name, name) {
			*hs = append((*hs)[:i], (*hs)[i+1:]...)
			return
		}
	}
}

func (hs HeaderSet) Sort() {
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Name < hs[j].Name })
}

func (hs HeaderSet) Map() map[string]string {
	m := make(map[string]string, len(hs))
	for _, h := range hs {
		m[h.Name] = h.Value
	}
	return m
}

type AttachmentRecord struct {
	FileName    string
	ContentType string
	Data        []byte
	// Timestamp is the sanitized Date label used as file name prefix
	Timestamp string
	// Path is set once the attachment was written to disk
	Path string
}

// DecodedMessage is the normalized form of one fetched message. It is not modified after it
// has been handed out.
type DecodedMessage struct {
	Uid        uint32
	MailIdHash string
	Headers    HeaderSet
	Body       string

	// Attachments is nil unless returning attachments was requested
	Attachments []*AttachmentRecord
	// SavedFiles lists the paths of attachments written to disk
	SavedFiles []string

	Verdict *ContentVerdict
	// Arc is set when ARC verification was requested
	Arc *ArcResult
}
