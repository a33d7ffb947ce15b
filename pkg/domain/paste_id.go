package domain

import (
	"math/rand"
	"strings"
)

const (
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	DefaultIDLength = 12
	MaxIDLength     = 64
)

type PasteID struct {
	s string
}

func NewPasteID(size int) PasteID {
	if size < 1 {
		size = 1
	}
	var b strings.Builder
	b.Grow(size)
	for i := 0; i < size; i++ {
		b.WriteByte(base62Chars[rand.Intn(len(base62Chars))])
	}
	return PasteID{s: b.String()}
}

// length is not checked
func ParsePasteID(s string) (PasteID, error) {
	if s == "" {
		return PasteID{}, &InvalidIDError{Input: s}
	}
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) {
			return PasteID{}, &InvalidIDError{Input: s}
		}
	}
	return PasteID{s: s}, nil
}

func (id PasteID) String() string { return id.s }

func (id PasteID) IsZero() bool { return id.s == "" }

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
