// Package signature verifies Stripe-style HMAC-SHA256 webhook signatures.
//
// A delivery carries a header of the form
//
//	t=1700000000,v1=5257a869e7ecebeda32affa62cdca3fa51cad7e77a0e56ff536d0ce8e108d8bd
//
// where v1 is the lowercase hex HMAC-SHA256 of "<t>.<raw body>" keyed with the
// endpoint secret. Everything in this package is a pure function of its
// arguments and safe for concurrent use.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SignedPayload builds the exact byte string the provider signs: the
// timestamp as received, a single ".", then the raw body.
func SignedPayload(timestamp string, payload []byte) []byte {
	signed := make([]byte, 0, len(timestamp)+1+len(payload))
	signed = append(signed, timestamp...)
	signed = append(signed, '.')
	return append(signed, payload...)
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of signed keyed with
// secret. Keys of any length, including empty, are accepted.
func ComputeSignature(signed, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(signed)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header carries a valid v1 signature of payload under
// secret.
//
// A signature mismatch is not an error: it yields (false, nil). Errors are
// structural only: a *HeaderError wrapping ErrMalformedPair when the header
// cannot be parsed, otherwise ErrMissingTimestamp or ErrMissingSignature. The
// timestamp is used verbatim and is not checked against the clock; see
// Header.Timestamp for that.
func Verify(secret []byte, header string, payload []byte) (bool, error) {
	parsed, err := ParseHeader(header)
	if err != nil {
		return false, &HeaderError{Err: err}
	}

	timestamp, ok := parsed[TimestampKey]
	if !ok {
		return false, ErrMissingTimestamp
	}

	received, ok := parsed[SignatureKey]
	if !ok {
		return false, ErrMissingSignature
	}

	expected := ComputeSignature(SignedPayload(timestamp, payload), secret)

	// hmac.Equal runs in constant time for equal lengths and returns early
	// only on a length mismatch, which leaks nothing about the digest.
	return hmac.Equal([]byte(expected), []byte(received)), nil
}

// Sign renders a header that Verify accepts for payload signed at ts.
func Sign(secret []byte, payload []byte, ts time.Time) string {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	return TimestampKey + "=" + timestamp + "," +
		SignatureKey + "=" + ComputeSignature(SignedPayload(timestamp, payload), secret)
}
