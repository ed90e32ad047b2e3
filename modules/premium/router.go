package premium

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumichat/premium/pkg/billing"
	"github.com/lumichat/premium/pkg/binder"
	"github.com/lumichat/premium/pkg/taskqueue"
	"github.com/lumichat/premium/pkg/verifier"
)

// maxWebhookBody bounds webhook payload reads. Paddle events are small;
// anything past this is noise or abuse.
const maxWebhookBody = 1 << 20

// Router exposes the premium status API.
//
//	POST /verify            resolve a user's premium status
//	POST /tasks             enqueue a reconciliation task
//	GET  /tasks/{taskID}    poll a task
//	POST /webhooks/billing  receive billing provider events
func Router(svc *Service) chi.Router {
	r := chi.NewRouter()

	r.Post("/verify", svc.handleVerify)
	r.Post("/tasks", svc.handleEnqueue)
	r.Get("/tasks/{taskID}", svc.handleGetTask)
	r.Post("/webhooks/billing", svc.handleWebhook)

	return r
}

type verifyRequest struct {
	Email string `json:"email"`
	UID   string `json:"uid,omitempty"`
}

type verifyResponse struct {
	Eligible           bool                                      `json:"eligible"`
	Source             verifier.Source                           `json:"source"`
	SubscriptionStatus string                                    `json:"subscriptionStatus,omitempty"`
	CancelAtPeriodEnd  bool                                      `json:"cancelAtPeriodEnd,omitempty"`
	Diagnostics        map[verifier.Source]verifier.SourceResult `json:"diagnostics,omitempty"`
	CorrectionApplied  bool                                      `json:"correctionApplied,omitempty"`
	Token              string                                    `json:"token,omitempty"`
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := binder.BindJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.VerifyStatus(r.Context(), req.Email, req.UID)
	switch {
	case errors.Is(err, verifier.ErrEmailRequired):
		respondError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, verifier.ErrAllSourcesUnavailable):
		respondError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	verdict := result.Verdict
	respondJSON(w, http.StatusOK, verifyResponse{
		Eligible:           verdict.Eligible,
		Source:             verdict.Source,
		SubscriptionStatus: verdict.SubscriptionStatus,
		CancelAtPeriodEnd:  verdict.CancelAtPeriodEnd,
		Diagnostics:        verdict.Diagnostics,
		CorrectionApplied:  verdict.Correction != nil && verdict.Correction.Err == nil,
		Token:              result.Token,
	})
}

type enqueueRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type enqueueResponse struct {
	TaskID uuid.UUID `json:"taskId"`
	Status string    `json:"status"`
}

func (s *Service) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := binder.BindJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	id, err := s.EnqueueTask(r.Context(), taskqueue.TaskType(req.Type), payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	respondJSON(w, http.StatusAccepted, enqueueResponse{TaskID: id, Status: "pending"})
}

func (s *Service) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid task ID"))
		return
	}

	task := s.Task(id)
	if task == nil {
		respondError(w, http.StatusNotFound, errors.New("task not found"))
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type webhookResponse struct {
	Received bool       `json:"received"`
	Event    string     `json:"event,omitempty"`
	TaskID   *uuid.UUID `json:"taskId,omitempty"`
}

func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("failed to read webhook body"))
		return
	}

	outcome, err := s.HandleWebhook(r.Context(), payload, r.Header.Get("Paddle-Signature"))
	switch {
	case errors.Is(err, ErrWebhooksDisabled):
		respondError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, billing.ErrWebhookVerificationFailed):
		respondError(w, http.StatusUnauthorized, err)
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err)
		return
	}

	respondJSON(w, http.StatusOK, webhookResponse{
		Received: true,
		Event:    outcome.Event,
		TaskID:   outcome.TaskID,
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
