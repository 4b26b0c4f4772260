package signature

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Scheme keys understood by Verify. Other keys (v0, future schemes) are
// carried through ParseHeader untouched.
const (
	TimestampKey = "t"
	SignatureKey = "v1"
)

// Header is a parsed signature header: scheme key to raw value.
type Header map[string]string

// ParseHeader splits a "t=<ts>,v1=<hex>[,...]" header into its pairs.
//
// Every comma-separated segment must split on "=" into exactly two tokens.
// A value that itself contains "=" is rejected rather than split on the first
// "=", matching the provider's reference parser.
func ParseHeader(header string) (Header, error) {
	values := make(Header)

	for _, segment := range strings.Split(strings.TrimSpace(header), ",") {
		pair := strings.Split(segment, "=")
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPair, strings.TrimSpace(segment))
		}

		values[strings.TrimSpace(pair[0])] = strings.TrimSpace(pair[1])
	}

	return values, nil
}

// Timestamp parses the t field as Unix seconds. Verify never calls this;
// it is for callers enforcing their own replay window.
func (h Header) Timestamp() (time.Time, error) {
	raw, ok := h[TimestampKey]
	if !ok {
		return time.Time{}, ErrMissingTimestamp
	}

	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}

	return time.Unix(secs, 0), nil
}
