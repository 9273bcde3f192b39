package services

import (
	"fmt"
	"strings"
)

// base62Alphabet entspricht [0-9a-zA-Z]; die Reihenfolge ist Teil des Linkformats.
const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// EncodeBase62 kodiert eine Rezept-ID als kurzen Base62-String.
func EncodeBase62(n uint64) string {
	if n == 0 {
		return string(base62Alphabet[0])
	}
	var b strings.Builder
	for n > 0 {
		b.WriteByte(base62Alphabet[n%62])
		n /= 62
	}
	// Reihenfolge umkehren, da die niederwertigste Stelle zuerst geschrieben wurde.
	s := []byte(b.String())
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return string(s)
}

// DecodeBase62 dekodiert einen Base62-String zurück zur Rezept-ID.
func DecodeBase62(encoded string) (uint64, error) {
	if encoded == "" {
		return 0, fmt.Errorf("empty base62 string")
	}
	var n uint64
	for _, r := range encoded {
		idx := strings.IndexRune(base62Alphabet, r)
		if idx < 0 {
			return 0, fmt.Errorf("invalid base62 character %q", r)
		}
		n = n*62 + uint64(idx)
	}
	return n, nil
}
