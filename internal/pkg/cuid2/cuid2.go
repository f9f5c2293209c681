// Package cuid2 generates prefixed, time-sortable identifiers for jobs,
// batches, and content records ("job_0CL2KwaB3cD5eF7gH9iJ1k").
package cuid2

import (
	crypto_rand "crypto/rand"
	"strings"
	"time"
)

// Base62 alphabet: 0-9, A-Z, a-z (62 characters)
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// randomLength is the random portion following the timestamp prefix,
// ~107 bits of entropy at ~5.95 bits per character.
const randomLength = 18

// New generates a prefixed ID with a 6-character base62 timestamp followed by
// a CUID-like random string. The timestamp prefix keeps IDs lexicographically
// sortable by creation time, which also gives B-tree index locality when the
// IDs land in Postgres.
func New(prefix string) string {
	return prefix + "_" + encodeTimestamp(time.Now().Unix()) + randomBase62(randomLength)
}

// encodeTimestamp encodes a Unix timestamp (seconds) as a 6-character base62
// string. Range: 0 to ~56 billion seconds (~1800 years from the epoch).
func encodeTimestamp(seconds int64) string {
	n := seconds
	result := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(result)
}

// randomBase62 draws uniformly from the base62 alphabet using bit extraction
// with rejection sampling: 6 bits at a time, values >= 62 rejected (~3%).
func randomBase62(length int) string {
	bytesNeeded := (length*6)/8 + 4
	buf := make([]byte, bytesNeeded)
	if _, err := crypto_rand.Read(buf); err != nil {
		panic("failed to read random bytes: " + err.Error())
	}

	var result strings.Builder
	bitBuffer := uint64(0)
	bitsInBuffer := uint(0)
	byteIndex := 0

	for result.Len() < length {
		for bitsInBuffer < 6 && byteIndex < len(buf) {
			bitBuffer = (bitBuffer << 8) | uint64(buf[byteIndex])
			bitsInBuffer += 8
			byteIndex++
		}

		value := (bitBuffer >> (bitsInBuffer - 6)) & 0x3f
		bitsInBuffer -= 6

		if value < 62 {
			result.WriteByte(base62Alphabet[value])
		}

		// Ran out of bytes before filling the ID; draw more.
		if byteIndex >= len(buf) && result.Len() < length {
			if _, err := crypto_rand.Read(buf); err != nil {
				panic("failed to read random bytes: " + err.Error())
			}
			byteIndex = 0
			bitBuffer = 0
			bitsInBuffer = 0
		}
	}

	return result.String()
}
