package cache

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"

	"github.com/google/uuid"
)

// internalNamespace salts every identifier before it reaches a tier, so
// entries written through Cache never collide with foreign keys in a shared
// store.
var internalNamespace = uuid.MustParse("93cfdaf9-e722-4307-83b6-a214647fb2b6")

// DeriveKey returns the hex HMAC-SHA1 of rawKey keyed by namespace. Callers
// use one namespace per logical use so that equal raw keys from different
// features do not collide.
func DeriveKey(rawKey, namespace string) string {
	mac := hmac.New(sha1.New, []byte(namespace))
	_, _ = mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}

func internalKey(identifier string) string {
	return DeriveKey(identifier, internalNamespace.String())
}
