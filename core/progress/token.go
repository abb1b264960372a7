package progress

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// tokenBytes is the entropy of a verification token: 256 bits.
const tokenBytes = 32

var randReader io.Reader = rand.Reader // mockable

// NewToken returns a random URL-safe verification token (43 characters).
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// VerifyURL builds the link a supervisor follows to apply action to the log bound to token.
func VerifyURL(baseURL, token string, action Status) string {
	return fmt.Sprintf("%s/verify?token=%s&action=%s", strings.TrimRight(baseURL, "/"), token, action)
}
