// Package crypto provides cryptographic helpers for the Sentinel engine.
package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// fingerprintDelimiter separates the header values before hashing so that
// ("ab","c") and ("a","bc") never collide.
const fingerprintDelimiter = "|"

// Fingerprint derives a stable device identity hash from request metadata.
// Missing headers must be passed as empty strings. The digest is
// deterministic: identical inputs always produce identical output.
func Fingerprint(userAgent, acceptLanguage, acceptEncoding string) string {
	sum := blake2b.Sum256([]byte(userAgent + fingerprintDelimiter + acceptLanguage + fingerprintDelimiter + acceptEncoding))
	return hex.EncodeToString(sum[:])
}
