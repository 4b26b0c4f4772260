package testutil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/oleg-kozlyuk-grafana/go-webhooksig/signature"
)

// SignatureHeader is the header the provider sends deliveries with.
const SignatureHeader = "Stripe-Signature"

// SignedRequest builds a POST delivery of body signed with secret at ts, the
// way the provider would send it.
func SignedRequest(target string, secret, body []byte, ts time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature.Sign(secret, body, ts))
	return req
}
