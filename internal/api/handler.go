package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/forexcompass/compass/internal/a2a"
)

// maxBodyBytes caps the inbound envelope size.
const maxBodyBytes = 1 << 20

// Responder answers one chat prompt. ok is false when the answer is
// degraded apology text rather than a genuine response.
type Responder interface {
	Respond(ctx context.Context, contextID, prompt, inlineHistory string) (answer string, ok bool)
}

// WebhookDeliverer posts result envelopes to caller-supplied URLs.
type WebhookDeliverer interface {
	Deliver(ctx context.Context, cfg *a2a.PushNotificationConfig, resp *a2a.Response) error
}

// A2AHandler serves the JSON-RPC agent endpoint.
type A2AHandler struct {
	agentName string
	responder Responder
	webhooks  WebhookDeliverer
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewA2AHandler creates the handler for one named agent.
func NewA2AHandler(agentName string, responder Responder, webhooks WebhookDeliverer, logger *slog.Logger) (*A2AHandler, error) {
	if agentName == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	if webhooks == nil {
		return nil, fmt.Errorf("webhook deliverer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &A2AHandler{
		agentName: agentName,
		responder: responder,
		webhooks:  webhooks,
		logger:    logger,
	}, nil
}

// RegisterRoutes registers the agent endpoint on mux.
func (h *A2AHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /a2a/{agent}", h.handleSend)
}

// Wait blocks until all in-flight asynchronous deliveries finish.
func (h *A2AHandler) Wait() {
	h.wg.Wait()
}

func (h *A2AHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	if agent := r.PathValue("agent"); agent != h.agentName {
		writeResponse(w, http.StatusNotFound, a2a.NewErrorResponse("", &a2a.Error{
			Code:    a2a.CodeMethodNotFound,
			Message: "Method not found",
			Data:    map[string]string{"agent": fmt.Sprintf("unknown agent %q", agent)},
		}))
		return
	}

	var req a2a.Request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, a2a.NewErrorResponse("", &a2a.Error{
			Code:    a2a.CodeInvalidRequest,
			Message: "Invalid request",
			Data:    map[string]string{"body": "malformed JSON"},
		}))
		return
	}

	if rpcErr := req.Validate(); rpcErr != nil {
		writeResponse(w, http.StatusBadRequest, a2a.NewErrorResponse(req.ID, rpcErr))
		return
	}

	prompt, rpcErr := req.Prompt()
	if rpcErr != nil {
		writeResponse(w, http.StatusBadRequest, a2a.NewErrorResponse(req.ID, rpcErr))
		return
	}

	taskID := req.Params.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	contextID := req.Params.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	webhook := req.WebhookConfig()
	if !req.Blocking() && webhook != nil {
		h.respondAsync(r.Context(), &req, webhook, prompt, taskID, contextID)
		writeResponse(w, http.StatusAccepted,
			a2a.NewResultResponse(req.ID, taskID, contextID, a2a.StateWorking, ""))
		return
	}

	answer, ok := h.responder.Respond(r.Context(), contextID, prompt, req.History())
	writeResponse(w, http.StatusOK,
		a2a.NewResultResponse(req.ID, taskID, contextID, taskState(ok), answer))
}

// taskState maps the responder's verdict onto the task lifecycle: degraded
// answers still carry text for the user but the task itself failed.
func taskState(ok bool) string {
	if ok {
		return a2a.StateCompleted
	}
	return a2a.StateFailed
}

// respondAsync runs the pipeline in the background and delivers the result
// to the caller's webhook. The work outlives the request, so it runs on a
// context detached from the request's cancellation.
func (h *A2AHandler) respondAsync(reqCtx context.Context, req *a2a.Request, webhook *a2a.PushNotificationConfig, prompt, taskID, contextID string) {
	ctx := context.WithoutCancel(reqCtx)
	history := req.History()
	requestID := req.ID

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		answer, ok := h.responder.Respond(ctx, contextID, prompt, history)
		resp := a2a.NewResultResponse(requestID, taskID, contextID, taskState(ok), answer)
		if err := h.webhooks.Deliver(ctx, webhook, resp); err != nil {
			h.logger.Error("webhook delivery failed",
				"url", webhook.URL, "task_id", taskID, "error", err)
		}
	}()
}

// writeResponse serializes one JSON-RPC envelope.
func writeResponse(w http.ResponseWriter, status int, resp *a2a.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}
