// Package push abstracts the multicast push transport. The production
// sender targets Firebase Cloud Messaging; tests use Recorder.
package push

import (
	"context"
	"log/slog"
)

// Payload is the message body of one multicast send.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
}

// Response is the per-token outcome, indexed 1:1 with the token slice
// passed to SendMulticast.
type Response struct {
	Success   bool
	ErrorCode string
}

// Result is the aggregate outcome of a multicast send.
type Result struct {
	SuccessCount int
	Responses    []Response
}

// FCM error codes that mean a token is permanently dead and must be
// deactivated.
const (
	CodeInvalidToken      = "messaging/invalid-registration-token"
	CodeTokenUnregistered = "messaging/registration-token-not-registered"
)

// TokenDead reports whether a per-token error code means the token should
// be deactivated. Transient errors (quota, unavailable) do not qualify.
func TokenDead(code string) bool {
	return code == CodeInvalidToken || code == CodeTokenUnregistered
}

// Sender delivers one payload to many device tokens in a single call.
type Sender interface {
	SendMulticast(ctx context.Context, tokens []string, p Payload) (*Result, error)
}

// FCMSender sends push notifications via Firebase Cloud Messaging.
// Nil-safe: when not configured, sends report success without delivering.
type FCMSender struct {
	credentialsFile string
	logger          *slog.Logger
	// TODO: Add firebase.google.com/go/v4/messaging.Client when the FCM
	// dependency is added; SendMulticast then maps to SendEachForMulticast.
}

// NewFCMSender creates an FCM sender from a service account credentials
// file. Returns nil if credentialsFile is empty (push disabled).
func NewFCMSender(credentialsFile string, logger *slog.Logger) *FCMSender {
	if credentialsFile == "" {
		return nil
	}
	return &FCMSender{credentialsFile: credentialsFile, logger: logger}
}

// SendMulticast sends one payload to every token and returns per-token
// results. Currently logs the send and reports success for each token.
func (s *FCMSender) SendMulticast(ctx context.Context, tokens []string, p Payload) (*Result, error) {
	if s != nil {
		s.logger.Info("FCM multicast (pending integration)",
			"tokens", len(tokens), "title", p.Title)
	}
	res := &Result{SuccessCount: len(tokens), Responses: make([]Response, len(tokens))}
	for i := range res.Responses {
		res.Responses[i].Success = true
	}
	return res, nil
}
