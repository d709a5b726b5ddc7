package domain

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"strings"
)

const (
	JoinCodeLength = 6
	joinCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewJoinCode returns a random 6-character uppercase alphanumeric code.
// There is no uniqueness check against other active games.
func NewJoinCode() string {
	code := make([]byte, JoinCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeChars))))
		if err != nil {
			code[i] = joinCodeChars[mrand.Intn(len(joinCodeChars))]
			continue
		}
		code[i] = joinCodeChars[n.Int64()]
	}
	return string(code)
}

// NormalizeJoinCode uppercases and trims user-typed codes.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code has the shape NewJoinCode produces.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(joinCodeChars, c) {
			return false
		}
	}
	return true
}
