// Package identity derives deterministic poll identities for sources that do
// not expose stable IDs of their own.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Answer is one answer row as it participates in the fingerprint.
type Answer struct {
	Choice  string
	Party   *string
	Percent *float64
}

// PollKey holds the defining scalar attributes of a poll, each already in
// canonical string form ("" when absent). Field order is fixed: changing it
// changes every derived identity.
type PollKey struct {
	Pollster     string
	StartDate    string
	EndDate      string
	SampleSize   string
	Population   string
	Jurisdiction string
	Title        string
	Subject      string
	PollType     string
}

// Fingerprint produces a stable hex identity for a poll. The answer set is
// normalized and sorted first, so permuting the input answers yields the
// same fingerprint, while any change to a defining attribute or to the
// answers yields a different one.
func Fingerprint(key PollKey, answers []Answer) string {
	joined := strings.Join([]string{
		key.Pollster,
		key.StartDate,
		key.EndDate,
		key.SampleSize,
		key.Population,
		key.Jurisdiction,
		key.Title,
		key.Subject,
		key.PollType,
		AnswersFingerprint(answers),
	}, "|")

	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// AnswersFingerprint normalizes each answer to "choice:party:percent", sorts
// by the composite key "choice|party|percent" and joins with ",". Absent
// party and percent render as empty strings.
func AnswersFingerprint(answers []Answer) string {
	type entry struct {
		sortKey string
		norm    string
	}
	entries := make([]entry, 0, len(answers))
	for _, a := range answers {
		party := ""
		if a.Party != nil {
			party = *a.Party
		}
		percent := ""
		if a.Percent != nil {
			percent = strconv.FormatFloat(*a.Percent, 'f', -1, 64)
		}
		entries = append(entries, entry{
			sortKey: a.Choice + "|" + party + "|" + percent,
			norm:    a.Choice + ":" + party + ":" + percent,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].sortKey < entries[j].sortKey
	})

	norms := make([]string, len(entries))
	for i, e := range entries {
		norms[i] = e.norm
	}
	return strings.Join(norms, ",")
}
