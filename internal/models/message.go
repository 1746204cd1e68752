package models

// InboundMessage is one user message delivered by the chat transport.
// Created per webhook event and discarded once the reply is sent.
type InboundMessage struct {
	SenderID int64  `json:"sender_id"`
	ChatID   int64  `json:"chat_id"`
	Text     string `json:"text"`
}

// OutboundReply is the single text response produced for an inbound message.
type OutboundReply struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}
