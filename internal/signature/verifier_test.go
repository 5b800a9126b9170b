package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"payment-webhook-service/internal/apperror"
)

const testSecret = "whsec_test_secret"

func sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestVerifier(now time.Time) *Verifier {
	v := NewVerifier(testSecret, 5*time.Minute)
	v.now = func() time.Time { return now }
	return v
}

func TestVerify_Valid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sign(testSecret, now.Unix(), body))

	appErr := newTestVerifier(now).Verify(body, header)
	assert.Nil(t, appErr)
}

func TestVerify_ValidWithinTolerance(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Add(-4 * time.Minute).Unix()
	body := []byte(`{"id":"evt_1"}`)
	header := fmt.Sprintf("t=%d,v1=%s", ts, sign(testSecret, ts, body))

	appErr := newTestVerifier(now).Verify(body, header)
	assert.Nil(t, appErr)
}

func TestVerify_StaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Add(-600 * time.Second).Unix()
	body := []byte(`{"id":"evt_1"}`)
	// correctly signed, but too old
	header := fmt.Sprintf("t=%d,v1=%s", ts, sign(testSecret, ts, body))

	appErr := newTestVerifier(now).Verify(body, header)
	assert.NotNil(t, appErr)
	assert.Equal(t, apperror.AuthenticationFailed, appErr.Code)
}

func TestVerify_FutureTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Add(10 * time.Minute).Unix()
	body := []byte(`{"id":"evt_1"}`)
	header := fmt.Sprintf("t=%d,v1=%s", ts, sign(testSecret, ts, body))

	appErr := newTestVerifier(now).Verify(body, header)
	assert.NotNil(t, appErr)
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1"}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sign("whsec_other_secret", now.Unix(), body))

	appErr := newTestVerifier(now).Verify(body, header)
	assert.NotNil(t, appErr)
	assert.Equal(t, apperror.AuthenticationFailed, appErr.Code)
}

func TestVerify_TamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","amount":100}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sign(testSecret, now.Unix(), body))

	tampered := []byte(`{"id":"evt_1","amount":999}`)
	appErr := newTestVerifier(now).Verify(tampered, header)
	assert.NotNil(t, appErr)
}

func TestVerify_MultipleSignatures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1"}`)
	// one bogus, one valid; acceptance requires at least one match
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(),
		sign("whsec_rotated_out", now.Unix(), body), sign(testSecret, now.Unix(), body))

	appErr := newTestVerifier(now).Verify(body, header)
	assert.Nil(t, appErr)
}

func TestVerify_MalformedHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no timestamp", "v1=" + sign(testSecret, now.Unix(), body)},
		{"no signature", fmt.Sprintf("t=%d", now.Unix())},
		{"garbage", "not-a-signature-header"},
		{"bad timestamp", "t=abc,v1=" + sign(testSecret, now.Unix(), body)},
		{"bad hex", fmt.Sprintf("t=%d,v1=zzzz", now.Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := newTestVerifier(now).Verify(body, tt.header)
			assert.NotNil(t, appErr)
			// same code for every rejection, no verification oracle
			assert.Equal(t, apperror.AuthenticationFailed, appErr.Code)
		})
	}
}

func TestVerify_EmptyBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sign(testSecret, now.Unix(), nil))

	appErr := newTestVerifier(now).Verify(nil, header)
	assert.NotNil(t, appErr)
	assert.Equal(t, apperror.AuthenticationFailed, appErr.Code)
}
