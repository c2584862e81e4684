// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/CrawX/go-imap-harvest/domain"

	"github.com/emersion/go-message"
)

const (
	ArcSealHeader                  = "ARC-Seal"
	ArcMessageSignatureHeader      = "ARC-Message-Signature"
	ArcAuthenticationResultsHeader = "ARC-Authentication-Results"
)

var ArcHeaders = []string{ArcAuthenticationResultsHeader, ArcMessageSignatureHeader, ArcSealHeader}

// tags RFC 8617 requires in every seal and message signature
var (
	sealTags      = []string{"i", "a", "t", "cv", "d", "s", "b"}
	signatureTags = []string{"i", "a", "d", "s", "h", "bh", "b"}
)

var (
	aarInstance = regexp.MustCompile(`^\s*i\s*=\s*([0-9]+)\s*;`)
	arcMethod   = regexp.MustCompile(`(?:^|[;\s(])arc=([^;\s()]*)`)
	odaMethod   = regexp.MustCompile(`(?:^|[;\s(])oda=([^;\s()]*)`)
)

// VerifyArc evaluates the newest ARC set of header. It passes when the authentication results
// say arc=pass and oda=1 and the matching seal and signature carry all required tags with a
// chain validation other than fail.
func VerifyArc(header message.Header) *domain.ArcResult {
	result := &domain.ArcResult{Status: domain.ArcMissing}

	authResults := values(header, ArcAuthenticationResultsHeader)
	if len(authResults) == 0 {
		result.Reason = fmt.Errorf("%s header not found", ArcAuthenticationResultsHeader)
		return result
	}

	instance, latest := 0, ""
	for _, v := range authResults {
		match := aarInstance.FindStringSubmatch(v)
		if match == nil {
			continue
		}
		i, err := strconv.Atoi(match[1])
		if err == nil && i > instance {
			instance, latest = i, v
		}
	}
	if instance == 0 {
		result.Status = domain.ArcFail
		result.Reason = fmt.Errorf("%s without instance tag", ArcAuthenticationResultsHeader)
		return result
	}
	result.Instance = instance

	arc := arcMethod.FindStringSubmatch(latest)
	oda := odaMethod.FindStringSubmatch(latest)
	if arc == nil || oda == nil {
		result.Reason = fmt.Errorf("arc or oda not found in %s i=%d", ArcAuthenticationResultsHeader, instance)
		return result
	}
	result.Arc, result.Oda = strings.ToLower(arc[1]), oda[1]
	result.Status = domain.ArcFail

	seal, err := arcSet(header, ArcSealHeader, instance, sealTags)
	if err != nil {
		result.Reason = err
		return result
	}
	result.Seal = seal

	signature, err := arcSet(header, ArcMessageSignatureHeader, instance, signatureTags)
	if err != nil {
		result.Reason = err
		return result
	}
	result.Signature = signature

	switch {
	case result.Arc != "pass":
		result.Reason = fmt.Errorf("arc=%s", result.Arc)
	case result.Oda != "1":
		result.Reason = fmt.Errorf("oda=%s", result.Oda)
	case strings.EqualFold(seal["cv"], "fail"):
		result.Reason = fmt.Errorf("%s i=%d has cv=fail", ArcSealHeader, instance)
	default:
		result.Status = domain.ArcPass
	}
	return result
}

func arcSet(header message.Header, name string, instance int, required []string) (map[string]string, error) {
	for _, v := range values(header, name) {
		tags, err := ParseTagList(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		if tags["i"] != strconv.Itoa(instance) {
			continue
		}

		missing := []string{}
		for _, tag := range required {
			if len(tags[tag]) == 0 {
				missing = append(missing, tag)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("invalid %s i=%d: missing %s", name, instance, strings.Join(missing, ", "))
		}
		return tags, nil
	}

	return nil, fmt.Errorf("no %s with i=%d", name, instance)
}

// ParseTagList splits a DKIM style `tag=value; tag=value` list. Folding whitespace inside
// values is removed.
func ParseTagList(value string) (map[string]string, error) {
	tags := map[string]string{}
	for _, spec := range strings.Split(value, ";") {
		if len(strings.TrimSpace(spec)) == 0 {
			continue
		}

		name, tagValue, ok := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if !ok || len(name) == 0 {
			return nil, fmt.Errorf("malformed tag %q", strings.TrimSpace(spec))
		}
		if _, exists := tags[name]; exists {
			return nil, fmt.Errorf("duplicate tag %s", name)
		}
		tags[name] = strings.Join(strings.Fields(tagValue), "")
	}
	return tags, nil
}
