// Command push-gateway-sim is a local stand-in for the FCM/APNS push
// gateways. It records every delivery it receives, verifies the payload
// signature when SECRET is set, and can fail a fraction of requests to
// exercise the circuit breaker.
//
// Point SWABBR_PUSH_GATEWAY_FCM and SWABBR_PUSH_GATEWAY_APNS at /fcm and
// /apns, then inspect /stats.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

type delivery struct {
	Timestamp   string `json:"timestamp"`
	Platform    string `json:"platform"`
	Device      string `json:"device"`
	SignatureOK *bool  `json:"signature_ok,omitempty"`
	Body        string `json:"body"`
}

type stats struct {
	Count          int64      `json:"count"`
	Failed         int64      `json:"failed"`
	BadSignatures  int64      `json:"bad_signatures"`
	LastDeliveries []delivery `json:"last_deliveries"`
	Since          string     `json:"since"`
}

var (
	mu             sync.Mutex
	count          int64
	failed         int64
	badSignatures  int64
	lastDeliveries []delivery
	since          time.Time
	maxStored      = 50

	secret   string
	failRate float64
)

func main() {
	since = time.Now().UTC()
	secret = os.Getenv("SECRET")

	if v := os.Getenv("FAIL_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 || r > 1 {
			log.Fatalf("invalid FAIL_RATE %q: want a fraction in [0,1]", v)
		}
		failRate = r
	}

	addr := ":9100"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/fcm", gatewayHandler("fcm"))
	http.HandleFunc("/apns", gatewayHandler("apns"))
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		failed = 0
		badSignatures = 0
		lastDeliveries = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("push-gateway-sim listening on %s (fail_rate=%.2f, verify=%t)", addr, failRate, secret != "")
	log.Fatal(http.ListenAndServe(addr, nil))
}

func gatewayHandler(platform string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		defer r.Body.Close()

		d := delivery{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Platform:  platform,
			Device:    r.Header.Get("X-Swabbr-Device"),
			Body:      string(body),
		}

		var sigOK bool
		if secret != "" {
			sigOK = verifySignature(secret, body, r.Header.Get("X-Swabbr-Signature"))
			d.SignatureOK = &sigOK
		}

		mu.Lock()
		count++
		if secret != "" && !sigOK {
			badSignatures++
		}
		lastDeliveries = append(lastDeliveries, d)
		if len(lastDeliveries) > maxStored {
			lastDeliveries = lastDeliveries[len(lastDeliveries)-maxStored:]
		}
		current := count
		mu.Unlock()

		if secret != "" && !sigOK {
			log.Printf("delivery #%d rejected: bad signature (platform=%s, device=%s)", current, platform, d.Device)
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"bad signature"}`)
			return
		}

		if failRate > 0 && rand.Float64() < failRate {
			mu.Lock()
			failed++
			mu.Unlock()
			log.Printf("delivery #%d failed (injected, platform=%s)", current, platform)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":"injected failure"}`)
			return
		}

		log.Printf("delivery #%d: platform=%s device=%s %s", current, platform, d.Device, string(body))
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"received":%d}`, current)
	}
}

func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:          count,
		Failed:         failed,
		BadSignatures:  badSignatures,
		LastDeliveries: lastDeliveries,
		Since:          since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
