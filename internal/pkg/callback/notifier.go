// Package callback fires outbound webhooks with best-effort, retry-free
// semantics: every callback runs concurrently, the notifier waits for all
// of them to settle, and it never propagates a delivery failure to its
// caller — only logs it.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sink is one outbound webhook target.
type Sink struct {
	URL     string
	Method  string
	Headers map[string]string
}

// Notifier holds the HTTP client used to deliver callbacks.
type Notifier struct {
	client *http.Client
}

// New returns a Notifier with a 10s per-request timeout, matching the
// push-notification client's timeout budget.
func New() *Notifier {
	return &Notifier{client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify fires every sink concurrently with payload as the JSON body
// (for non-GET methods) and waits for all of them to settle. Invalid URLs
// are skipped with a warning rather than rejected up front.
func (n *Notifier) Notify(ctx context.Context, sinks []Sink, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("callback: failed to marshal payload")
		return
	}

	var wg sync.WaitGroup
	for _, sink := range sinks {
		sink := sink
		if !validAbsoluteURL(sink.URL) {
			log.Warn().Str("url", sink.URL).Msg("callback: skipping invalid webhook URL")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			n.deliver(ctx, sink, body)
		}()
	}
	wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, sink Sink, body []byte) {
	method := sink.Method
	if method == "" {
		method = http.MethodPost
	}

	var reqBody *bytes.Reader
	if method != http.MethodGet {
		reqBody = bytes.NewReader(body)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, sink.URL, reqBody)
	if err != nil {
		log.Error().Err(err).Str("url", sink.URL).Msg("callback: failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range sink.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", sink.URL).Msg("callback: delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Str("url", sink.URL).Int("status", resp.StatusCode).Msg("callback: non-2xx response")
	}
}

func validAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}
