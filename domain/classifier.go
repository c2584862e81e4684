// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/classifier.go -package=mocks . ContentClassifier
package domain

// ContentVerdict is the outcome of running a raw message through a content classifier.
// A failed check is reported through Error, the message itself is still decomposed.
type ContentVerdict struct {
	IsSpam bool
	Score  float64
	Error  error
}

type ContentClassifier interface {
	Check(rawMail []byte) *ContentVerdict
}
