package registry

import (
	"golang.org/x/text/encoding/charmap"
)

// The registry speaks ISO-8859-1 in both directions.

// EncodeLatin1 converts UTF-8 text to ISO-8859-1 bytes. Runes outside the
// charset are an error rather than being silently replaced.
func EncodeLatin1(s string) ([]byte, error) {
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
}

// DecodeLatin1 converts ISO-8859-1 bytes to UTF-8 text
func DecodeLatin1(b []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
