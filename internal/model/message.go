package model

import (
	"time"
	"unicode/utf8"
)

type Type string

const (
	TypeEmail Type = "email"
	TypeSMS   Type = "sms"
)

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDelivered Status = "delivered"
)

// Metadata keys populated on dispatch.
const (
	MetaProvider          = "provider"
	MetaProviderMessageID = "provider_message_id"
	MetaErrorKind         = "error_kind"
)

// transitions is the full state machine: draft and failed records may be
// (re)submitted, sending resolves to sent or failed, sent may be
// acknowledged as delivered. A record whose recipient fails validation
// moves to failed without entering sending (no dispatch happens).
var transitions = map[Status][]Status{
	StatusDraft:   {StatusSending, StatusFailed},
	StatusFailed:  {StatusSending, StatusFailed},
	StatusSending: {StatusSent, StatusFailed},
	StatusSent:    {StatusDelivered},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ValidStatus(raw string) bool {
	switch Status(raw) {
	case StatusDraft, StatusSending, StatusSent, StatusFailed, StatusDelivered:
		return true
	}
	return false
}

func ValidDirection(raw string) bool {
	switch Direction(raw) {
	case DirectionSent, DirectionReceived:
		return true
	}
	return false
}

// SegmentInfo describes how an SMS body splits across the wire.
type SegmentInfo struct {
	Characters int `json:"characters"`
	Segments   int `json:"segments"`
}

// SMSSegments reports the segment count for body: one segment carries up
// to 160 characters; concatenated messages carry 153 per segment because
// 7 are consumed by the part header.
func SMSSegments(body string) SegmentInfo {
	n := utf8.RuneCountInString(body)
	switch {
	case n == 0:
		return SegmentInfo{}
	case n <= 160:
		return SegmentInfo{Characters: n, Segments: 1}
	default:
		return SegmentInfo{Characters: n, Segments: (n + 152) / 153}
	}
}

// Message is the outbound communication record. ID, ContactID, Type and
// Recipient are fixed at creation; only status-related fields mutate
// afterwards.
type Message struct {
	ID           string            `json:"id"`
	ContactID    string            `json:"contact_id"`
	Type         Type              `json:"type"`
	Direction    Direction         `json:"direction"`
	Recipient    string            `json:"recipient"`
	Subject      *string           `json:"subject,omitempty"`
	Body         string            `json:"body"`
	Status       Status            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	DeliveredAt  *time.Time        `json:"delivered_at,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// StatusUpdatedAt is the time of the last status transition. It is
	// bookkeeping for crash recovery, not part of the wire record.
	StatusUpdatedAt time.Time `json:"-"`
}
