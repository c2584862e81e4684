// SPDX-License-Identifier: GPL-3.0-or-later
package rspamd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/CrawX/go-imap-harvest/domain"
	"github.com/CrawX/go-imap-harvest/log"

	"github.com/sirupsen/logrus"
)

const RspamdTimeout = 20 * time.Second

// NoAction is the rspamd action for mails that pass.
const NoAction = "no action"

// gathered via trial&error and the source-code of various rspamd modules. These are caused by misconfiguration on the
// sender's side and not by the dns server being slow to respond for example.
var okFailSymbols = regexp.MustCompile(`^(R_DKIM_PERMFAIL|DMARC_POLICY_SOFTFAIL|R_SPF_SOFTFAIL|DMARC_DNSFAIL|R_SPF_FAIL)$`)

// Rspamd talks to the controller worker. host may carry a path prefix when rspamd sits behind
// a reverse proxy.
type Rspamd struct {
	client   *http.Client
	endpoint *url.URL
	password string

	l *logrus.Logger
}

func NewRspamd(host, password string) (*Rspamd, error) {
	endpoint, err := url.Parse(strings.TrimSuffix(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid rspamd host %q: %w", host, err)
	}
	if (endpoint.Scheme != "http" && endpoint.Scheme != "https") || len(endpoint.Host) == 0 {
		return nil, fmt.Errorf("invalid rspamd host %q: expected http(s)://host[:port]", host)
	}

	rspamd := &Rspamd{
		client:   &http.Client{Timeout: RspamdTimeout},
		endpoint: endpoint,
		password: password,
		l:        log.Logger(log.LOG_CLASSIFIER),
	}
	err = rspamd.Ping()
	if err != nil {
		return nil, fmt.Errorf("could not ping rspamd: %w", err)
	}

	return rspamd, nil
}

// request sends an authenticated request to the controller. Any status but 200 is an error and
// the response body is closed in that case.
func (rs *Rspamd) request(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, rs.endpoint.JoinPath(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("could not create %s request: %w", path, err)
	}
	req.Header.Set("Password", rs.password)

	resp, err := rs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request to rspamd: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from rspamd, expected 200", resp.StatusCode)
	}
	return resp, nil
}

// Ping checks that host answers like an rspamd controller.
func (rs *Rspamd) Ping() error {
	resp, err := rs.request(http.MethodGet, "ping", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	pong, err := ioutil.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("could not read ping response: %w", err)
	}
	if !strings.HasPrefix(string(pong), "pong") {
		return fmt.Errorf("unexpected ping response %q, is this an rspamd controller?", strings.TrimSpace(string(pong)))
	}

	return nil
}

type checkResponse struct {
	IsSkipped bool    `json:"is_skipped"`
	Score     float64 `json:"score"`
	Symbols   map[string]struct {
		Name  string
		Score float64
	} `json:"symbols"`
	Action string `json:"action"`
}

func (rs *Rspamd) Check(rawMail []byte) *domain.ContentVerdict {
	resp, err := rs.request(http.MethodPost, "checkv2", bytes.NewReader(rawMail))
	if err != nil {
		return errVerdict(err)
	}
	defer resp.Body.Close()

	checkResponse := &checkResponse{}
	err = json.NewDecoder(resp.Body).Decode(checkResponse)
	if err != nil {
		return errVerdict(fmt.Errorf("could not deserialize rspamd response: %w", err))
	}

	if checkResponse.IsSkipped {
		return errVerdict(fmt.Errorf("rspamd skipped the mail"))
	}

	if len(checkResponse.Symbols) == 0 {
		return errVerdict(fmt.Errorf("could not find any symbols in rspamd response"))
	}

	for symbol := range checkResponse.Symbols {
		if strings.HasSuffix(symbol, "FAIL") && !okFailSymbols.MatchString(symbol) {
			return errVerdict(fmt.Errorf("unexpected FAIL symbol %s in rspamd response", symbol))
		}
	}

	rs.l.WithFields(logrus.Fields{"action": checkResponse.Action, "score": checkResponse.Score}).Trace("Checked mail")
	return &domain.ContentVerdict{
		IsSpam: checkResponse.Action != NoAction,
		Score:  checkResponse.Score,
	}
}

func errVerdict(err error) *domain.ContentVerdict {
	return &domain.ContentVerdict{Error: err}
}
