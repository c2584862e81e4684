// SPDX-License-Identifier: GPL-3.0-or-later
package spamassassin

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/CrawX/go-imap-harvest/domain"
	"github.com/CrawX/go-imap-harvest/log"

	"github.com/sirupsen/logrus"
	"github.com/teamwork/spamc"
)

const SpamAssassinTimeout = 20 * time.Second

// SpamAssassin classifies mails with a spamd instance.
type SpamAssassin struct {
	client  *spamc.Client
	timeout time.Duration

	l *logrus.Logger
}

func NewSpamAssassin(host string) (*SpamAssassin, error) {
	sa := newSpamAssassin(host, SpamAssassinTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), sa.timeout)
	defer cancel()
	err := sa.client.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not ping SpamAssassin: %w", err)
	}

	sa.l.WithFields(logrus.Fields{"host": host}).Debug("Connected to spamd")
	return sa, nil
}

func newSpamAssassin(host string, timeout time.Duration) *SpamAssassin {
	return &SpamAssassin{
		client: spamc.New(host, &net.Dialer{
			Timeout: timeout,
		}),
		timeout: timeout,
		l:       log.Logger(log.LOG_CLASSIFIER),
	}
}

func (sa *SpamAssassin) Check(rawMail []byte) *domain.ContentVerdict {
	ctx, cancel := context.WithTimeout(context.Background(), sa.timeout)
	defer cancel()

	out, err := sa.client.Process(ctx, bytes.NewReader(rawMail), nil)
	if err != nil {
		return errVerdict(fmt.Errorf("could not check SpamAssassin: %w", err))
	}

	err = out.Message.Close()
	if err != nil {
		return errVerdict(fmt.Errorf("could not close response: %w", err))
	}

	sa.l.WithFields(logrus.Fields{"isSpam": out.IsSpam, "score": out.Score}).Trace("Checked mail")
	return &domain.ContentVerdict{
		IsSpam: out.IsSpam,
		Score:  out.Score,
	}
}

func errVerdict(err error) *domain.ContentVerdict {
	return &domain.ContentVerdict{Error: err}
}
