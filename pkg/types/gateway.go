package types

// Gateway WebSocket protocol. The client sends QueryFrame; the server
// answers with a sequence of WSFrame values. Every turn ends with exactly
// one EventDone frame, error or not.

const (
	// EventSessionID announces the session id issued for a new client.
	EventSessionID = "[ID]"
	// EventDone is the terminal marker closing a chat turn.
	EventDone = "[DONE]"
	// EventError reports a failed turn; it precedes the terminal marker.
	EventError = "[ERROR]"
)

// QueryFrame is the client -> gateway message.
type QueryFrame struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// WSFrame is the gateway -> client message.
type WSFrame struct {
	Token     string `json:"token,omitempty"`
	Event     string `json:"event,omitempty"`
	Detail    string `json:"detail,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatAPIRequest is the buffered HTTP alternative to the WebSocket.
type ChatAPIRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatAPIResponse carries the full buffered answer.
type ChatAPIResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}
