// Package sha256 derives stable digests used as cache keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key hashes the parts with a unit separator between them and returns a hex
// digest. Distinct part boundaries always produce distinct input bytes.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
