// Package signature signs and verifies request bodies with shared secrets.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

var (
	ErrMissing  = errors.New("missing signature or secret")
	ErrMismatch = errors.New("signature mismatch")
)

// SHA256Hex returns hex(HMAC-SHA256(secret, body)).
func SHA256Hex(secret string, body []byte) string {
	return sum(sha256.New, secret, body)
}

// SHA512Hex returns hex(HMAC-SHA512(secret, body)).
func SHA512Hex(secret string, body []byte) string {
	return sum(sha512.New, secret, body)
}

// VerifySHA256Hex checks a hex HMAC-SHA256 signature, ignoring case.
func VerifySHA256Hex(secret string, body []byte, sig string) error {
	return verify(SHA256Hex, secret, body, sig)
}

// VerifySHA512Hex checks a hex HMAC-SHA512 signature, ignoring case.
func VerifySHA512Hex(secret string, body []byte, sig string) error {
	return verify(SHA512Hex, secret, body, sig)
}

func sum(h func() hash.Hash, secret string, body []byte) string {
	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(sign func(string, []byte) string, secret string, body []byte, sig string) error {
	sig = strings.ToLower(strings.TrimSpace(sig))
	if sig == "" || secret == "" {
		return ErrMissing
	}
	if !hmac.Equal([]byte(sig), []byte(sign(secret, body))) {
		return ErrMismatch
	}
	return nil
}
