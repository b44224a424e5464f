// Package a2a implements the JSON-RPC 2.0 envelope format used by the
// agent-to-agent (A2A) messaging protocol: request validation, prompt and
// history extraction, and result envelope construction.
package a2a

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JSON-RPC 2.0 error codes used by the protocol surface.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Task status states reported in result envelopes.
const (
	StateWorking   = "working"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Methods accepted on the agent endpoint.
var allowedMethods = map[string]struct{}{
	"message/send": {},
	"execute":      {},
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Part is one element of a message's parts array. Kind is "text" or "data";
// text parts carry the prompt, data parts carry structured history.
type Part struct {
	Kind string          `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is the user message inside params.
type Message struct {
	Role      string          `json:"role"`
	Parts     []Part          `json:"parts"`
	MessageID string          `json:"messageId,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// PushNotificationConfig describes the webhook destination for asynchronous
// delivery.
type PushNotificationConfig struct {
	URL   string `json:"url,omitempty"`
	Token string `json:"token,omitempty"`
}

// Configuration carries delivery preferences.
type Configuration struct {
	Blocking               *bool                   `json:"blocking,omitempty"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	AcceptedOutputModes    []string                `json:"acceptedOutputModes,omitempty"`
	HistoryLength          int                     `json:"historyLength,omitempty"`
}

// Params is the params block of a message/send request.
type Params struct {
	Message       Message        `json:"message"`
	Configuration *Configuration `json:"configuration,omitempty"`
	TaskID        string         `json:"taskId,omitempty"`
	ContextID     string         `json:"contextId,omitempty"`
}

// Request is a full inbound JSON-RPC envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

// Blocking reports whether the caller asked for a synchronous response.
// Defaults to true when the configuration or the flag is absent.
func (r *Request) Blocking() bool {
	if r.Params.Configuration == nil || r.Params.Configuration.Blocking == nil {
		return true
	}
	return *r.Params.Configuration.Blocking
}

// WebhookConfig returns the push notification config, or nil when absent or
// lacking a URL.
func (r *Request) WebhookConfig() *PushNotificationConfig {
	if r.Params.Configuration == nil {
		return nil
	}
	pc := r.Params.Configuration.PushNotificationConfig
	if pc == nil || pc.URL == "" {
		return nil
	}
	return pc
}

// Validate checks the envelope structure. On failure it returns an *Error
// with code CodeInvalidParams and a details payload naming the offending
// field.
func (r *Request) Validate() *Error {
	if r.JSONRPC != "2.0" {
		return &Error{
			Code:    CodeInvalidParams,
			Message: "Invalid params",
			Data:    map[string]string{"jsonrpc": "must be \"2.0\""},
		}
	}
	if r.ID == "" {
		return &Error{
			Code:    CodeInvalidParams,
			Message: "Invalid params",
			Data:    map[string]string{"id": "required"},
		}
	}
	if _, ok := allowedMethods[r.Method]; !ok {
		return &Error{
			Code:    CodeInvalidParams,
			Message: "Invalid params",
			Data:    map[string]string{"method": fmt.Sprintf("unsupported method %q", r.Method)},
		}
	}
	if r.Params.Message.Role != "user" {
		return &Error{
			Code:    CodeInvalidParams,
			Message: "Invalid params",
			Data:    map[string]string{"message.role": "must be \"user\""},
		}
	}
	if len(r.Params.Message.Parts) == 0 {
		return &Error{
			Code:    CodeInvalidParams,
			Message: "Invalid params",
			Data:    map[string]string{"message.parts": "at least one part required"},
		}
	}
	for i, p := range r.Params.Message.Parts {
		if p.Kind != "text" && p.Kind != "data" {
			return &Error{
				Code:    CodeInvalidParams,
				Message: "Invalid params",
				Data:    map[string]string{fmt.Sprintf("message.parts[%d].kind", i): "must be \"text\" or \"data\""},
			}
		}
	}
	return nil
}

// HistoryEntry is one prior message carried in a data part. Entries
// alternate user/agent starting with the user.
type HistoryEntry struct {
	Text string `json:"text"`
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// stripHTML removes markup tags from text sent by chat platforms.
func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}

// Prompt extracts the user prompt from the first text part, with HTML tags
// stripped. Returns an *Error when no usable text part exists.
func (r *Request) Prompt() (string, *Error) {
	for _, p := range r.Params.Message.Parts {
		if p.Kind == "text" {
			return stripHTML(p.Text), nil
		}
	}
	return "", &Error{
		Code:    CodeInvalidParams,
		Message: "Invalid params",
		Data:    map[string]string{"message.parts": "no text part found for the user prompt"},
	}
}

// History extracts prior conversation turns from the first data part,
// formatted as a "User: ...\nYou: ..." block for prompt templates. Returns
// an empty string when no data part exists or it cannot be parsed; request
// history is best-effort context, never a validation failure.
func (r *Request) History() string {
	for _, p := range r.Params.Message.Parts {
		if p.Kind != "data" || len(p.Data) == 0 {
			continue
		}
		var entries []HistoryEntry
		if err := json.Unmarshal(p.Data, &entries); err != nil {
			return ""
		}
		var b strings.Builder
		for i, e := range entries {
			speaker := "User"
			if i%2 == 1 {
				speaker = "You"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, stripHTML(e.Text))
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return ""
}

// Status is the task status block inside a result envelope.
type Status struct {
	State     string   `json:"state"`
	Timestamp string   `json:"timestamp"`
	Message   *Message `json:"message,omitempty"`
}

// Result is the task result payload.
type Result struct {
	ID        string `json:"id"`
	ContextID string `json:"contextId"`
	Status    Status `json:"status"`
	Kind      string `json:"kind"`
}

// Response is a full outbound JSON-RPC envelope. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      string  `json:"id"`
	Result  *Result `json:"result,omitempty"`
	Error   *Error  `json:"error,omitempty"`
}

// NewResultResponse builds a result envelope carrying the agent's answer.
func NewResultResponse(requestID, taskID, contextID, state, answer string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      requestID,
		Result: &Result{
			ID:        taskID,
			ContextID: contextID,
			Status: Status{
				State:     state,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Message: &Message{
					Role:  "agent",
					Parts: []Part{{Kind: "text", Text: answer}},
				},
			},
			Kind: "task",
		},
	}
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(requestID string, jsonrpcErr *Error) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      requestID,
		Error:   jsonrpcErr,
	}
}
