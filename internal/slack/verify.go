package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// MaxRequestAge is how far a request timestamp may be from now.
const MaxRequestAge = 5 * time.Minute

// Verifier checks Slack request signatures.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for the app signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify checks the X-Slack-Signature header against the raw body and the
// X-Slack-Request-Timestamp header.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if len(v.secret) == 0 {
		return eris.New("slack: no signing secret configured")
	}
	if timestamp == "" || signature == "" {
		return eris.New("slack: missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return eris.Wrap(err, "slack: parse request timestamp")
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > MaxRequestAge || age < -MaxRequestAge {
		return eris.Errorf("slack: request timestamp outside %s window", MaxRequestAge)
	}

	if !hmac.Equal([]byte(Sign(v.secret, timestamp, body)), []byte(signature)) {
		return eris.New("slack: signature mismatch")
	}
	return nil
}

// Sign returns the v0 signature of body sent at timestamp.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
