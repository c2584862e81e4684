// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "errors"

var (
	ErrInvalidFilterValue      = errors.New("invalid filter value")
	ErrSession                 = errors.New("mailbox session error")
	ErrSessionUnusable         = errors.New("mailbox session unusable")
	ErrMalformedMessage        = errors.New("malformed message")
	ErrSecurityPolicyViolation = errors.New("attachment security policy violation")
	ErrAttachmentWrite         = errors.New("could not write attachment")
)
