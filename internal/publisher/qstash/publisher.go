// Package qstash publishes queue messages through Upstash QStash.
package qstash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	upstash "github.com/qstash/qstash-go"
)

const defaultBaseURL = "https://qstash.upstash.io"

// Config holds QStash credentials and delivery policy.
type Config struct {
	BaseURL string
	Token   string
	// Retries is forwarded as Upstash-Retries; QStash redelivers on worker failure.
	Retries int
	// FailureCallbackURL receives the message after retries are exhausted.
	FailureCallbackURL string
	HTTPClient         *http.Client
}

// Publisher sends messages to QStash, which delivers them to the destination URL.
type Publisher struct {
	baseURL string
	retries int
	failure string
	client  *upstash.Client
}

// New validates cfg and returns a Publisher.
func New(cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("qstash token is required")
	}
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Publisher{
		baseURL: base,
		retries: cfg.Retries,
		failure: cfg.FailureCallbackURL,
		client: upstash.NewClientWithOptions(upstash.Options{
			Url:    base,
			Token:  cfg.Token,
			Client: httpClient,
		}),
	}, nil
}

// Publish enqueues payload for immediate delivery to destination.
func (p *Publisher) Publish(ctx context.Context, destination string, payload any) (string, error) {
	return p.PublishAt(ctx, destination, payload, time.Time{})
}

// PublishAt enqueues payload for delivery no earlier than notBefore. A zero
// notBefore delivers immediately.
func (p *Publisher) PublishAt(ctx context.Context, destination string, payload any, notBefore time.Time) (string, error) {
	if strings.TrimSpace(destination) == "" {
		return "", errors.New("qstash destination is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := jsonBody(payload)
	if err != nil {
		return "", err
	}

	retries := p.retries
	opts := upstash.PublishJSONOptions{
		Url:             destination,
		Body:            body,
		Retries:         &retries,
		FailureCallback: p.failure,
	}
	if !notBefore.IsZero() {
		opts.NotBefore = notBefore.Unix()
	}

	res, err := p.client.PublishJSON(opts)
	if err != nil {
		return "", fmt.Errorf("qstash publish: %w", err)
	}
	if res.MessageId == "" {
		return "", errors.New("qstash response missing messageId")
	}
	return res.MessageId, nil
}

// jsonBody converts a typed payload into the object form the SDK serializes.
func jsonBody(payload any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("qstash payload must be a JSON object: %w", err)
	}
	return out, nil
}
