package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-EzLedger-Signature"

// DefaultClient gives up on slow receivers after 5 seconds.
var DefaultClient = &http.Client{Timeout: 5 * time.Second}

// Sign returns the signature a receiver should expect for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SendWebhook posts the already-encoded JSON payload to url and signs it with secret.
func SendWebhook(ctx context.Context, client *http.Client, url string, payload []byte, secret string) error {
	if client == nil {
		client = DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "EzLedger-Webhook/1.0")
	req.Header.Set(SignatureHeader, Sign(payload, secret))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook receiver returned error: %d", resp.StatusCode)
}
