// Package grouping decides which events represent the same issue.
//
// Given an event and a strategy configuration it computes a set of grouping variants,
// each reducible to a stable hash. Hashes must stay bit-identical across releases: an
// event grouped today must land in the same issue when it is re-grouped later with the
// configuration persisted alongside it.
package grouping

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
)

// checksumRegex matches client checksums that are already in hash format.
var checksumRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// HashFromValues returns the hex MD5 digest of the concatenated values.
// No separator is written between values; this is part of the persisted hash format.
func HashFromValues(values []string) string {
	h := md5.New()
	for _, v := range values {
		_, _ = h.Write([]byte(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsValidChecksum reports whether checksum can be used verbatim as a group hash.
func IsValidChecksum(checksum string) bool {
	return checksumRegex.MatchString(checksum)
}
