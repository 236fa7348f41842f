// internal/model/message.go
package model

import "time"

// OutgoingMessage is what the send transport receives.
type OutgoingMessage struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
	HTMLBody string
}

// RawMessage is an undecoded message fetched from the remote mailbox.
type RawMessage struct {
	UID  uint32
	Body []byte
}

// ParsedMessage is a fully materialized inbound message.
type ParsedMessage struct {
	UID         uint32
	MessageID   string
	InReplyTo   string
	References  []string
	FromAddress string
	FromName    string
	Subject     string
	TextBody    string
	HTMLBody    string
	Date        time.Time
}

// PollResult summarizes one inbox poll.
type PollResult struct {
	Fetched     int  `json:"fetched"`
	Processed   int  `json:"processed"`
	Matched     int  `json:"matched"`
	Unmatched   int  `json:"unmatched"`
	Duplicates  int  `json:"duplicates"`
	Filtered    int  `json:"filtered"`
	ParseErrors int  `json:"parse_errors"`
	NoSender    int  `json:"no_sender"`
	TimedOut    bool `json:"timed_out"`
}
