// SPDX-License-Identifier: GPL-3.0-or-later
package domain

type ArcStatus string

const (
	ArcPass    ArcStatus = "pass"
	ArcFail    ArcStatus = "fail"
	ArcMissing ArcStatus = "missing"
)

// ArcResult is what the newest ARC set of a message states about it. Signatures are not
// checked against the sealer's keys.
type ArcResult struct {
	Status ArcStatus
	// Instance is the i= tag of the evaluated ARC set
	Instance int
	// Arc and Oda hold the arc= and oda= results of ARC-Authentication-Results
	Arc string
	Oda string

	Seal      map[string]string
	Signature map[string]string

	// Reason is set unless Status is ArcPass
	Reason error
}
