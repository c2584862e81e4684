// SPDX-License-Identifier: GPL-3.0-or-later
package decomposer

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/CrawX/go-imap-harvest/domain"
	"github.com/CrawX/go-imap-harvest/domain/mocks"
	"github.com/CrawX/go-imap-harvest/log"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

const (
	TEST_MAILBOX  = "INBOX"
	TEST_CRITERIA = "(UNSEEN)"
)

func readTestMail(t *testing.T, name string) []byte {
	rawMail, err := ioutil.ReadFile(path.Join("testdata", name))
	assert.NoError(t, err)
	return rawMail
}

func setupSession(t *testing.T, uids ...uint32) (*gomock.Controller, *mocks.MockMailboxSession) {
	log.InitLogging("error")
	ctrl := gomock.NewController(t)
	session := mocks.NewMockMailboxSession(ctrl)

	session.EXPECT().
		Select(gomock.Eq(TEST_MAILBOX)).
		Return(uint32(42), nil)
	session.EXPECT().
		Search(gomock.Eq(TEST_CRITERIA)).
		Return(uids, nil)

	return ctrl, session
}

func decomposeOne(t *testing.T, rawMail []byte, cfgs ...ConfigFunc) *Item {
	ctrl, session := setupSession(t, 7)
	defer ctrl.Finish()

	session.EXPECT().
		Fetch(gomock.Eq(uint32(7))).
		Return(rawMail, nil)

	d, err := NewDecomposer(session, cfgs...)
	assert.NoError(t, err)
	seq, err := d.Decompose(TEST_MAILBOX, TEST_CRITERIA)
	assert.NoError(t, err)
	defer seq.Close()

	assert.True(t, seq.Next())
	item := seq.Item()
	assert.False(t, seq.Next())
	assert.NoError(t, seq.Err())
	return item
}

func TestNewDecomposer(t *testing.T) {
	log.InitLogging("error")
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	session := mocks.NewMockMailboxSession(ctrl)

	tests := []struct {
		name    string
		session domain.MailboxSession
		cfgs    []ConfigFunc
		err     string
	}{
		{"ok", session, []ConfigFunc{}, ""},
		{"all options", session, []ConfigFunc{WithoutEmojiSupport(), CleanBodyText(), FormatDatetime(), ReturnAttachments(), SaveAttachments(""), FullHeaders(), SeparateSenderEmail(), UnwrapReports(), VerifyArc()}, ""},
		{"nil session", nil, []ConfigFunc{}, "session cannot be nil"},
		{"nil classifier", session, []ConfigFunc{Classifier(nil)}, "error applying configuration: Classifier cannot be nil"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := NewDecomposer(tc.session, tc.cfgs...)
			if len(tc.err) == 0 {
				assert.NotNil(t, d)
				assert.NoError(t, err)
			} else {
				assert.Nil(t, d)
				assert.EqualError(t, err, tc.err)
			}
		})
	}
}

func TestDefaultConfiguration(t *testing.T) {
	log.InitLogging("error")
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	d, err := NewDecomposer(mocks.NewMockMailboxSession(ctrl))
	assert.NoError(t, err)
	assert.Equal(t, defaultConfiguration(), d.configuration)
	assert.True(t, d.configuration.EmojiSupport)
	assert.Nil(t, d.store)

	d, err = NewDecomposer(mocks.NewMockMailboxSession(ctrl), SaveAttachments(""))
	assert.NoError(t, err)
	assert.Equal(t, "attachments", d.store.Dir())
}

func TestDecomposeKeepsSearchOrder(t *testing.T) {
	ctrl, session := setupSession(t, 3, 1, 2)
	defer ctrl.Finish()

	rawMail := readTestMail(t, "plain.msg")
	gomock.InOrder(
		session.EXPECT().Fetch(gomock.Eq(uint32(3))).Return(rawMail, nil),
		session.EXPECT().Fetch(gomock.Eq(uint32(1))).Return(rawMail, nil),
		session.EXPECT().Fetch(gomock.Eq(uint32(2))).Return(rawMail, nil),
	)

	d, err := NewDecomposer(session)
	assert.NoError(t, err)
	seq, err := d.Decompose(TEST_MAILBOX, TEST_CRITERIA)
	assert.NoError(t, err)
	assert.Equal(t, 3, seq.Len())
	assert.Equal(t, uint32(42), seq.UidValidity())
	assert.Equal(t, TEST_MAILBOX, seq.Mailbox())

	uids := []uint32{}
	for seq.Next() {
		item := seq.Item()
		assert.NoError(t, item.Err)
		assert.Equal(t, item.Uid, item.Message.Uid)
		uids = append(uids, item.Uid)
	}
	assert.NoError(t, seq.Err())
	assert.Equal(t, []uint32{3, 1, 2}, uids)
	assert.Equal(t, 3, seq.Len())
	assert.Nil(t, seq.Item())
}

func TestDecomposeEmptyExpression(t *testing.T) {
	log.InitLogging("error")
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	session := mocks.NewMockMailboxSession(ctrl)

	session.EXPECT().Select(gomock.Eq(TEST_MAILBOX)).Return(uint32(1), nil)
	session.EXPECT().Search(gomock.Eq("ALL")).Return([]uint32{}, nil)

	d, err := NewDecomposer(session)
	assert.NoError(t, err)
	seq, err := d.Decompose(TEST_MAILBOX, "  ")
	assert.NoError(t, err)
	assert.False(t, seq.Next())
	assert.NoError(t, seq.Err())
}

func TestDecomposeSessionErrors(t *testing.T) {
	log.InitLogging("error")
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	session := mocks.NewMockMailboxSession(ctrl)

	session.EXPECT().Select(gomock.Eq(TEST_MAILBOX)).Return(uint32(0), fmt.Errorf("NO no such mailbox"))
	d, err := NewDecomposer(session)
	assert.NoError(t, err)
	seq, err := d.Decompose(TEST_MAILBOX, TEST_CRITERIA)
	assert.Nil(t, seq)
	assert.True(t, errors.Is(err, domain.ErrSession))
	assert.EqualError(t, err, "mailbox session error: could not select INBOX: NO no such mailbox")

	session.EXPECT().Select(gomock.Eq(TEST_MAILBOX)).Return(uint32(1), nil)
	session.EXPECT().Search(gomock.Eq(TEST_CRITERIA)).Return(nil, fmt.Errorf("BAD criteria"))
	seq, err = d.Decompose(TEST_MAILBOX, TEST_CRITERIA)
	assert.Nil(t, seq)
	assert.True(t, errors.Is(err, domain.ErrSession))
}

func TestFetchErrorContinues(t *testing.T) {
	ctrl, session := setupSession(t, 1, 2, 3)
	defer ctrl.Finish()

	rawMail := readTestMail(t, "plain.msg")
	gomock.InOrder(
		session.EXPECT().Fetch(gomock.Eq(uint32(1))).Return(rawMail, nil),
		session.EXPECT().Fetch(gomock.Eq(uint32(2))).Return(nil, fmt.Errorf("message vanished")),
		session.EXPECT().Fetch(gomock.Eq(uint32(3))).Return([]byte("not a mail header\r\n"), nil),
	)

	d, err := NewDecomposer(session)
	assert.NoError(t, err)
	seq, err := d.Decompose(TEST_MAILBOX, TEST_CRITERIA)
	assert.NoError(t, err)

	items := []*Item{}
	for seq.Next() {
		items = append(items, seq.Item())
	}
	assert.NoError(t, seq.Err())
	assert.Len(t, items, 3)

	assert.NoError(t, items[0].Err)
	assert.NotNil(t, items[0].Message)

	assert.True(t, errors.Is(items[1].Err, domain.ErrSession))
	assert.Nil(t, items[1].Message)

	assert.True(t, errors.Is(items[2].Err, domain.ErrMalformedMessage))
	assert.Nil(t, items[2].Message)
}

func TestSessionUnusableStopsSequence(t *testing.T) {
	ctrl, session := setupSession(t, 1, 2, 3)
	defer ctrl.Finish()

	gomock.InOrder(
		session.EXPECT().Fetch(gomock.Eq(uint32(1))).Return(readTestMail(t, "plain.msg"), nil),
		session.EXPECT().Fetch(gomock.Eq(uint32(2))).Return(nil, fmt.Errorf("%w: connection closed", domain.ErrSessionUnusable)),
	)

	d, err := NewDecomposer(session)
	assert.NoError(t, err)
	seq, err := d.Decompose(TEST_MAILBOX, TEST_CRITERIA)
	assert.NoError(t, err)

	assert.True(t, seq.Next())
	assert.False(t, seq.Next())
	assert.True(t, errors.Is(seq.Err(), domain.ErrSessionUnusable))
	assert.Nil(t, seq.Item())
	assert.False(t, seq.Next())
}

func TestCloseStopsFetching(t *testing.T) {
	ctrl, session := setupSession(t, 1, 2, 3)
	defer ctrl.Finish()

	session.EXPECT().Fetch(gomock.Eq(uint32(1))).Return(readTestMail(t, "plain.msg"), nil)

	d, err := NewDecomposer(session)
	assert.NoError(t, err)
	seq, err := d.Decompose(TEST_MAILBOX, TEST_CRITERIA)
	assert.NoError(t, err)

	assert.True(t, seq.Next())
	seq.Close()
	assert.False(t, seq.Next())
	assert.Nil(t, seq.Item())
	assert.NoError(t, seq.Err())
}

func TestDecomposeHeaders(t *testing.T) {
	item := decomposeOne(t, readTestMail(t, "multipart.msg"))
	assert.NoError(t, item.Err)

	headers := item.Message.Headers
	messageId, ok := headers.Get("Message-ID")
	assert.True(t, ok)
	assert.Equal(t, "multi-1@example.com", messageId)
	subject, _ := headers.Get("Subject")
	assert.Equal(t, "Grüße aus Köln", subject)
	date, _ := headers.Get("Date")
	assert.Equal(t, "Tue, 5 Mar 2024 09:15:00 +0100", date)
	_, ok = headers.Get("Received")
	assert.False(t, ok)

	for i := 1; i < len(headers); i++ {
		assert.True(t, headers[i-1].Name < headers[i].Name)
	}
	assert.Equal(t, "778a16f3fe990f9344cb8ab698662cb5b0d4c9cb7b1021213f77832b7f6b4a0a", item.Message.MailIdHash)
	assert.Nil(t, item.Message.Attachments)
	assert.Nil(t, item.Message.SavedFiles)
}

func TestDecomposeSeparateSender(t *testing.T) {
	item := decomposeOne(t, readTestMail(t, "multipart.msg"), SeparateSenderEmail(), FullHeaders(), FormatDatetime())
	assert.NoError(t, item.Err)

	headers := item.Message.Headers.Map()
	assert.Equal(t, "Jane Doe", headers["From"])
	assert.Equal(t, "jane@example.com", headers["From"+AddressSuffix])
	assert.Equal(t, "Bob, Doe, John", headers["To"])
	assert.Equal(t, "bob@example.com, john@example.com", headers["To"+AddressSuffix])
	assert.Equal(t, "2024-03-05 09:15:00", headers["Date"])
	assert.Contains(t, headers, "Received")
	assert.NotContains(t, headers, "CC"+AddressSuffix)
}

func TestDecomposeBody(t *testing.T) {
	item := decomposeOne(t, readTestMail(t, "multipart.msg"))
	assert.Contains(t, item.Message.Body, "see https://example.com/report for details.")
	assert.Contains(t, item.Message.Body, "Visit https://example.com/a")
	assert.NotContains(t, item.Message.Body, "<a")

	item = decomposeOne(t, readTestMail(t, "multipart.msg"), CleanBodyText())
	assert.Equal(t, "Hello Bob,", item.Message.Body)
}

func TestDecomposeEmoji(t *testing.T) {
	rawMail := []byte("Message-ID: <emoji@example.com>\r\nSubject: smile\r\n\r\nHi 😀\r\n")

	item := decomposeOne(t, rawMail)
	assert.NoError(t, item.Err)
	assert.NotContains(t, item.Message.Body, "😀")
	assert.Regexp(t, `^Hi :[^:\s]+:`, item.Message.Body)

	item = decomposeOne(t, rawMail, WithoutEmojiSupport())
	assert.Contains(t, item.Message.Body, "Hi 😀")
}

func TestDecomposeAttachments(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")
	item := decomposeOne(t, readTestMail(t, "multipart.msg"), FormatDatetime(), SaveAttachments(dir), ReturnAttachments())
	assert.NoError(t, item.Err)

	expected := filepath.Join(dir, "2024-03-05_09-15-00_report.pdf")
	assert.Equal(t, []string{expected}, item.Message.SavedFiles)
	assert.Len(t, item.Message.Attachments, 1)
	assert.Equal(t, "report.pdf", item.Message.Attachments[0].FileName)
	assert.Equal(t, "2024-03-05_09-15-00", item.Message.Attachments[0].Timestamp)
	assert.Equal(t, expected, item.Message.Attachments[0].Path)

	content, err := ioutil.ReadFile(expected)
	assert.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 test document"), content)
}

func TestDecomposeReturnWithoutSaving(t *testing.T) {
	item := decomposeOne(t, readTestMail(t, "multipart.msg"), ReturnAttachments())
	assert.NoError(t, item.Err)
	assert.Len(t, item.Message.Attachments, 1)
	assert.Equal(t, "Tue,_5_Mar_2024_09-15-00_+0100", item.Message.Attachments[0].Timestamp)
	assert.Empty(t, item.Message.Attachments[0].Path)
	assert.Empty(t, item.Message.SavedFiles)
}

func TestDecomposePolicyViolation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files")
	item := decomposeOne(t, readTestMail(t, "blocked.msg"), SaveAttachments(dir), ReturnAttachments())

	assert.True(t, errors.Is(item.Err, domain.ErrSecurityPolicyViolation))
	assert.NotNil(t, item.Message)
	assert.Contains(t, item.Message.Body, "Please open the archive.")
	assert.Nil(t, item.Message.Attachments)
	assert.Empty(t, item.Message.SavedFiles)

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestDecomposeClassifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	classifier := mocks.NewMockContentClassifier(ctrl)

	rawMail := readTestMail(t, "plain.msg")
	verdict := &domain.ContentVerdict{IsSpam: true, Score: 7.5}
	classifier.EXPECT().Check(gomock.Eq(rawMail)).Return(verdict)

	item := decomposeOne(t, rawMail, Classifier(classifier))
	assert.NoError(t, item.Err)
	assert.Equal(t, verdict, item.Message.Verdict)
}

func TestDecomposeClassifierFailureKeepsMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	classifier := mocks.NewMockContentClassifier(ctrl)

	classifier.EXPECT().Check(gomock.Any()).Return(&domain.ContentVerdict{Error: fmt.Errorf("spamd down")})

	item := decomposeOne(t, readTestMail(t, "plain.msg"), Classifier(classifier))
	assert.NoError(t, item.Err)
	assert.NotNil(t, item.Message)
	assert.EqualError(t, item.Message.Verdict.Error, "spamd down")
}

func TestDecomposeUnwrapReports(t *testing.T) {
	item := decomposeOne(t, readTestMail(t, "wrapped.msg"))
	subject, _ := item.Message.Headers.Get("Subject")
	assert.Equal(t, "*****SPAM***** Saying Hello", subject)

	item = decomposeOne(t, readTestMail(t, "wrapped.msg"), UnwrapReports())
	subject, _ = item.Message.Headers.Get("Subject")
	assert.Equal(t, "Saying Hello", subject)
	assert.Equal(t, "c263bf0c3abaad4ff3d03910ebe6de732d3f9b3dcf8aed01d38b8e02edfbf268", item.Message.MailIdHash)
}

func TestDecomposeContentHashFallback(t *testing.T) {
	rawMail := []byte("Subject: no identity\r\n\r\nbody\r\n")
	item := decomposeOne(t, rawMail)
	assert.NoError(t, item.Err)
	assert.Len(t, item.Message.MailIdHash, 64)
}

func TestDecomposeVerifyArc(t *testing.T) {
	arcHeaders := "ARC-Seal: i=1; a=rsa-sha256; t=1710699146; cv=none; d=google.com; s=arc-20160816; b=Zm9v\r\n" +
		"ARC-Message-Signature: i=1; a=rsa-sha256; c=relaxed/relaxed; d=google.com; s=arc-20160816; h=from:subject; bh=YWJj; b=ZGVm\r\n" +
		"ARC-Authentication-Results: i=1; mx.google.com; arc=%s; oda=1\r\n"
	mailWith := func(arc string) []byte {
		return []byte(fmt.Sprintf(arcHeaders, arc) + "Message-ID: <arc@example.com>\r\nSubject: arc\r\n\r\nbody\r\n")
	}

	item := decomposeOne(t, mailWith("pass"))
	assert.NoError(t, item.Err)
	assert.Nil(t, item.Message.Arc)

	item = decomposeOne(t, mailWith("pass"), VerifyArc())
	assert.NoError(t, item.Err)
	assert.Equal(t, domain.ArcPass, item.Message.Arc.Status)
	_, ok := item.Message.Headers.Get("ARC-Seal")
	assert.False(t, ok)

	item = decomposeOne(t, mailWith("fail"), VerifyArc(), FullHeaders())
	assert.NoError(t, item.Err)
	assert.Equal(t, domain.ArcFail, item.Message.Arc.Status)
	assert.EqualError(t, item.Message.Arc.Reason, "arc=fail")
	seal, ok := item.Message.Headers.Get("ARC-Seal")
	assert.True(t, ok)
	assert.Contains(t, seal, "cv=none")

	item = decomposeOne(t, []byte("Message-ID: <plain@example.com>\r\nSubject: plain\r\n\r\nbody\r\n"), VerifyArc())
	assert.NoError(t, item.Err)
	assert.Equal(t, domain.ArcMissing, item.Message.Arc.Status)
}
