package exchangeclient

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
)

// credHash derives the opaque per-credential cache/limiter key from an API
// key (spec §4.2: "Per-credential caches are keyed by an opaque credential
// identifier (e.g. a hash of the key)").
func credHash(creds gateway.Credentials) string {
	sum := sha256.Sum256([]byte(creds.APIKey))
	return hex.EncodeToString(sum[:])
}
