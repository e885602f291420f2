package exchangeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
)

// Signer produces the pre-signed header set for an authenticated request.
// The core treats signing as opaque (spec §6: "the exchange authentication
// primitive (signing is opaque)") — callers only ever pass Credentials
// through, never raw secrets beyond this boundary.
type Signer interface {
	Sign(req *http.Request, creds gateway.Credentials, timestamp time.Time) error
}

// HMACSigner is the default Signer: an HMAC-SHA256 over
// "timestamp+method+path+body", the scheme most perpetual-futures exchanges
// in this space use for REST signing.
type HMACSigner struct{}

func (HMACSigner) Sign(req *http.Request, creds gateway.Credentials, timestamp time.Time) error {
	ts := strconv.FormatInt(timestamp.UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	payload := ts + req.Method + req.URL.Path
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		payload += string(data)
	}
	mac.Write([]byte(payload))
	sig := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-API-Key", creds.APIKey)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	return nil
}
