package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the request header carrying the delivery signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of a signed timestamp.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature is returned when a payload cannot be authenticated.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier authenticates webhook payloads against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier. A non-positive tolerance uses DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify checks header against payload. It must run before the payload is parsed.
func (v *Verifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no signing secret configured", ErrInvalidSignature)
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(v.secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
}

// Sign produces a header value for payload, as the processor would send it.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	sig := computeSignature([]byte(secret), ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(sig))
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}

	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp, haveTime = ts, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTime {
		return 0, nil, fmt.Errorf("%w: missing timestamp", ErrInvalidSignature)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: missing v1 signature", ErrInvalidSignature)
	}
	return timestamp, signatures, nil
}
