// Package verifier authenticates processor webhook deliveries. Verification
// fails closed: any missing, malformed, expired, or mismatched signature
// rejects the delivery before a single byte of payload is interpreted.
package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	dErrors "tally/pkg/domain-errors"
)

// SignatureHeader is the header carrying the delivery signature, in the form
// "t=<unix>,v1=<hex>". The signed payload is "<unix>.<raw body>", so the
// timestamp is covered by the MAC and cannot be replayed with a fresh value.
const SignatureHeader = "Tally-Processor-Signature"

const defaultTolerance = 5 * time.Minute

type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

type Option func(*Verifier)

func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) { v.tolerance = d }
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func New(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:    []byte(secret),
		tolerance: defaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature header against the raw request body. Every
// failure returns CodeSignatureInvalid; callers surface it opaquely so the
// response does not reveal which check failed.
func (v *Verifier) Verify(body []byte, header string) error {
	if header == "" {
		return dErrors.New(dErrors.CodeSignatureInvalid, "missing signature header")
	}

	ts, sig, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return dErrors.New(dErrors.CodeSignatureInvalid, "signature timestamp outside tolerance")
	}

	expected := Sign(v.secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return dErrors.New(dErrors.CodeSignatureInvalid, "signature mismatch")
	}
	return nil
}

// Sign computes the hex MAC for a timestamped body. Exported for test
// fixtures and outbound signing.
func Sign(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseHeader(header string) (int64, string, error) {
	var (
		ts  int64
		sig string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, "", dErrors.New(dErrors.CodeSignatureInvalid, "malformed signature header")
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", dErrors.New(dErrors.CodeSignatureInvalid, "malformed signature timestamp")
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", dErrors.New(dErrors.CodeSignatureInvalid, "signature header missing t or v1")
	}
	return ts, sig, nil
}
