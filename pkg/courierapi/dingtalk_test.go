package courierapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyDingtalkSignature_AcceptsCorrectSignature(t *testing.T) {
	ts := "1690000000000"
	require.True(t, verifyDingtalkSignature(ts, sign(ts, "s3cr3t"), "s3cr3t"))
}

func TestVerifyDingtalkSignature_RejectsWrongSecret(t *testing.T) {
	ts := "1690000000000"
	require.False(t, verifyDingtalkSignature(ts, sign(ts, "s3cr3t"), "other"))
}

func TestVerifyDingtalkSignature_RejectsEmptySecret(t *testing.T) {
	require.False(t, verifyDingtalkSignature("1690000000000", "anything", ""))
}

func TestDingtalkTimestampValid_WithinWindow(t *testing.T) {
	now := time.Now()
	ts := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)

	require.True(t, dingtalkTimestampValid(ts, time.Hour, now))
}

func TestDingtalkTimestampValid_OutsideWindow(t *testing.T) {
	now := time.Now()
	ts := strconv.FormatInt(now.Add(-2*time.Hour).UnixMilli(), 10)

	require.False(t, dingtalkTimestampValid(ts, time.Hour, now))
}

func TestDingtalkTimestampValid_RejectsGarbage(t *testing.T) {
	require.False(t, dingtalkTimestampValid("not-a-number", time.Hour, time.Now()))
}
