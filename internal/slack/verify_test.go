package slack

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestSign_KnownVector(t *testing.T) {
	// Example from Slack's request signing documentation.
	body := []byte("token=xyzz0WbapA4vBCDEFasx0q6G&team_id=T1DC2JH3J&team_domain=testteamnow&channel_id=G8PSS9T3V&channel_name=foobar&user_id=U2CERLKJA&user_name=roadrunner&command=%2Fwebhook-collect&text=&response_url=https%3A%2F%2Fhooks.slack.com%2Fcommands%2FT1DC2JH3J%2F397700885554%2F96rGlfmibIGlgcZRskXaIFfN&trigger_id=398738663015.47445629121.803a0bc887a14d10d2c447fce8b6703c")
	got := Sign([]byte("8f742231b10e8888abcd99yyyzzz85a5"), "1531420618", body)
	assert.Equal(t, "v0=a2114d57b48eac39b9ad189dd8316235a7b4a8d21a10bd27519666489c69b503", got)
}

func TestVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte("text=keywords%3Dvape")
	sig := Sign([]byte("secret"), ts, body)

	v := fixedVerifier("secret", now)
	require.NoError(t, v.Verify(ts, sig, body))

	err := v.Verify(ts, sig, []byte("text=tampered"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestVerify_Window(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte("a=b")

	old := strconv.FormatInt(now.Add(-6*time.Minute).Unix(), 10)
	err := fixedVerifier("secret", now).Verify(old, Sign([]byte("secret"), old, body), body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")

	future := strconv.FormatInt(now.Add(6*time.Minute).Unix(), 10)
	require.Error(t, fixedVerifier("secret", now).Verify(future, Sign([]byte("secret"), future, body), body))

	recent := strconv.FormatInt(now.Add(-4*time.Minute).Unix(), 10)
	require.NoError(t, fixedVerifier("secret", now).Verify(recent, Sign([]byte("secret"), recent, body), body))
}

func TestVerify_BadInput(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := fixedVerifier("secret", now)

	assert.ErrorContains(t, v.Verify("", "v0=abc", nil), "missing signature headers")
	assert.ErrorContains(t, v.Verify("123", "", nil), "missing signature headers")
	assert.ErrorContains(t, v.Verify("not-a-number", "v0=abc", nil), "parse request timestamp")
	assert.ErrorContains(t, fixedVerifier("", now).Verify("1", "v0=abc", nil), "no signing secret")
}
