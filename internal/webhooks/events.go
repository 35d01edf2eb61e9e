package webhooks

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clerk event types the handler acts on.
const (
	EventUserCreated = "user.created"
	EventUserDeleted = "user.deleted"
)

// ParseError reports a malformed webhook payload.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid webhook payload: %s: %s", e.Field, e.Reason)
}

// ClerkEvent is a parsed Clerk delivery.
type ClerkEvent struct {
	// DeliveryID is the svix-id header.
	DeliveryID string
	Type       string
	UserID     string
	Email      string
	Timestamp  time.Time
	Raw        json.RawMessage
}

type clerkEnvelope struct {
	Type   string          `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
}

type clerkUser struct {
	ID                    string `json:"id"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddresses        []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// ParseClerkEvent validates the envelope and extracts the user fields.
// timestampHeader is the svix-timestamp value in unix seconds.
func ParseClerkEvent(payload []byte, deliveryID, timestampHeader string) (ClerkEvent, error) {
	var env clerkEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ClerkEvent{}, &ParseError{Field: "body", Reason: "not valid JSON"}
	}
	if strings.TrimSpace(env.Type) == "" {
		return ClerkEvent{}, &ParseError{Field: "type", Reason: "is required"}
	}
	ev := ClerkEvent{
		DeliveryID: strings.TrimSpace(deliveryID),
		Type:       env.Type,
		Raw:        json.RawMessage(payload),
	}
	if secs, err := strconv.ParseInt(strings.TrimSpace(timestampHeader), 10, 64); err == nil {
		ev.Timestamp = time.Unix(secs, 0).UTC()
	}

	if !strings.HasPrefix(env.Type, "user.") {
		if ev.DeliveryID == "" {
			return ClerkEvent{}, &ParseError{Field: "svix-id", Reason: "is required"}
		}
		return ev, nil
	}
	if len(env.Data) == 0 {
		return ClerkEvent{}, &ParseError{Field: "data", Reason: "is required"}
	}
	var user clerkUser
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return ClerkEvent{}, &ParseError{Field: "data", Reason: "must be a user object"}
	}
	if strings.TrimSpace(user.ID) == "" {
		return ClerkEvent{}, &ParseError{Field: "data.id", Reason: "is required"}
	}
	ev.UserID = user.ID
	for _, addr := range user.EmailAddresses {
		if ev.Email == "" || addr.ID == user.PrimaryEmailAddressID {
			ev.Email = strings.TrimSpace(addr.EmailAddress)
		}
		if addr.ID == user.PrimaryEmailAddressID {
			break
		}
	}
	return ev, nil
}
