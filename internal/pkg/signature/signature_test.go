package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"amount":"100"}`)

	sig := SHA256Hex("s3cret", body)
	assert.NoError(t, VerifySHA256Hex("s3cret", body, sig))
	assert.NoError(t, VerifySHA256Hex("s3cret", body, strings.ToUpper(sig)))
	assert.ErrorIs(t, VerifySHA256Hex("other", body, sig), ErrMismatch)
	assert.ErrorIs(t, VerifySHA256Hex("s3cret", body, ""), ErrMissing)
	assert.ErrorIs(t, VerifySHA256Hex("", body, sig), ErrMissing)

	sig512 := SHA512Hex("s3cret", body)
	assert.Len(t, sig512, 128)
	assert.NoError(t, VerifySHA512Hex("s3cret", body, sig512))
	assert.ErrorIs(t, VerifySHA512Hex("s3cret", []byte(`{}`), sig512), ErrMismatch)
}
