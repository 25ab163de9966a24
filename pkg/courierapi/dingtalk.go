package courierapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// verifyDingtalkSignature checks sign against the HMAC-SHA256 of
// "<timestamp>\n<secret>", base64-encoded, matching DingTalk's
// outgoing-webhook signing scheme.
func verifyDingtalkSignature(timestamp, sign, secret string) bool {
	if secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sign))
}

// dingtalkTimestampValid reports whether timestampMS (milliseconds
// since epoch, as DingTalk sends it) falls within window of now.
func dingtalkTimestampValid(timestampMS string, window time.Duration, now time.Time) bool {
	ms, err := strconv.ParseInt(timestampMS, 10, 64)
	if err != nil {
		return false
	}

	sent := time.UnixMilli(ms)

	delta := now.Sub(sent)
	if delta < 0 {
		delta = -delta
	}

	return delta < window
}
