// Test receiver for local development. Logs every webhook it gets and, when
// started with a secret, verifies the signature header the way a real
// subscriber would.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	addr := flag.String("addr", ":9999", "listen address")
	secret := flag.String("secret", "", "shared secret; verify signatures when set")
	status := flag.Int("status", 200, "status code to respond with")
	flag.Parse()

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		if *secret != "" {
			if !verifySignature(r.Header.Get("Quill-Signature"), body, *secret) {
				logger.Warn("signature verification failed")
				http.Error(w, "bad signature", http.StatusUnauthorized)
				return
			}
		}

		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		logger.Info("webhook received",
			"event", payload["event"],
			"subscription_id", payload["webhookSubscriptionId"],
			"user_agent", r.Header.Get("User-Agent"),
			"bytes", len(body),
		)

		w.WriteHeader(*status)
	})

	logger.Info("receiver listening", "addr", *addr, "status", *status, "verifying", *secret != "")
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("receiver failed", "error", err)
		os.Exit(1)
	}
}

// verifySignature checks a "t=<unix>,s=<hex>" header against the body.
func verifySignature(header string, body []byte, secret string) bool {
	var sig string
	for _, part := range strings.Split(header, ",") {
		if v, ok := strings.CutPrefix(part, "s="); ok {
			sig = v
		}
	}
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}
