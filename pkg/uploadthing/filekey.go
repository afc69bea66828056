package uploadthing

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqids/sqids-go"
)

const (
	sqidsAlphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	sqidsMinLength = 12
)

// GenerateFileKey derives the storage key for a file. The key starts with a
// Sqids encoding of the app id hash, using an alphabet shuffled by the app
// id, followed by the URL-safe base64 of fileSeed. Identical inputs always
// produce identical keys.
func GenerateFileKey(fileSeed, appID string) (string, error) {
	s, err := sqids.New(sqids.Options{
		Alphabet:  shuffle(sqidsAlphabet, appID),
		MinLength: sqidsMinLength,
	})
	if err != nil {
		return "", fmt.Errorf("uploadthing: init sqids: %w", err)
	}

	hash := int64(djb2(appID))
	if hash < 0 {
		hash = -hash
	}
	encodedApp, err := s.Encode([]uint64{uint64(hash)})
	if err != nil {
		return "", fmt.Errorf("uploadthing: encode app id: %w", err)
	}
	return encodedApp + base64.URLEncoding.EncodeToString([]byte(fileSeed)), nil
}

// newFileSeed returns a random 32 character hex seed.
func newFileSeed() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// djb2 hashes the runes of s from last to first with 32-bit wraparound and
// folds bit 31 into bit 30 before reinterpreting the result as signed.
func djb2(s string) int32 {
	runes := []rune(s)
	h := uint32(5381)
	for i := len(runes) - 1; i >= 0; i-- {
		h = (h * 33) ^ uint32(runes[i])
	}
	h = (h & 0xBFFFFFFF) | ((h >> 1) & 0x40000000)
	return int32(h)
}

// shuffle permutes s deterministically from seed.
func shuffle(s, seed string) string {
	chars := []rune(s)
	if len(chars) == 0 {
		return s
	}
	n := int64(djb2(seed))
	size := int64(len(chars))
	for i := range chars {
		// Truncated modulo keeps the sign of n; adding i brings it back to >= 0.
		j := (n%int64(i+1) + int64(i)) % size
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars)
}
