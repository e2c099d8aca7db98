package api

import "smsrelay-agent/internal/store"

// SubmitRequest is the payload for /api/sms/add. Absent optional fields are
// omitted rather than sent as null.
type SubmitRequest struct {
	SmsID          *int64  `json:"smsId,omitempty"`
	SmsTimestamp   int64   `json:"smsTimestamp"`
	EventTimestamp *int64  `json:"eventTimestamp,omitempty"`
	PhoneNumber    string  `json:"phoneNumber"`
	Body           string  `json:"body"`
	EventType      string  `json:"eventType"`
	ThreadID       *int64  `json:"threadId,omitempty"`
	DateSent       *int64  `json:"dateSent,omitempty"`
	Person         *string `json:"person,omitempty"`
}

// SubmitRequestFromEvent converts a stored event into its submission payload.
func SubmitRequestFromEvent(e *store.Event) *SubmitRequest {
	captured := e.CapturedTS
	return &SubmitRequest{
		SmsID:          e.ProviderID,
		SmsTimestamp:   e.OriginTS,
		EventTimestamp: &captured,
		PhoneNumber:    e.Counterparty,
		Body:           e.Body,
		EventType:      e.EventType,
		ThreadID:       e.ThreadKey,
		DateSent:       e.SentTS,
		Person:         e.DisplayName,
	}
}

// AuthResponse is the /api/auth/login success body.
type AuthResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresIn    int64     `json:"expiresIn"` // seconds
	User         *UserInfo `json:"user,omitempty"`
}

// UserInfo describes the authenticated user.
type UserInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// APIError is the error body returned on non-2xx responses.
type APIError struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}
