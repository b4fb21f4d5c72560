package hitl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type DecisionType string

const (
	DecisionApprove DecisionType = "approve"
	DecisionReject  DecisionType = "reject"
)

// ActionRequest names one side-effecting action awaiting a decision.
type ActionRequest struct {
	Name        string         `json:"name" validate:"required"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description,omitempty"`
}

type ReviewConfig struct {
	ActionName       string         `json:"action_name" validate:"required"`
	AllowedDecisions []DecisionType `json:"allowed_decisions" validate:"omitempty,dive,oneof=approve reject edit"`
}

// ApprovalRequest is the payload of an interrupt.
type ApprovalRequest struct {
	ActionRequests []ActionRequest `json:"action_requests" validate:"required,min=1,dive"`
	ReviewConfigs  []ReviewConfig  `json:"review_configs,omitempty" validate:"omitempty,dive"`
}

type Decision struct {
	Type    DecisionType `json:"type"`
	Message string       `json:"message,omitempty"`
}

// DecisionList holds one decision per action request, in order.
type DecisionList struct {
	Decisions []Decision `json:"decisions"`
}

// DecisionBatch maps interrupt ids to their decisions.
type DecisionBatch map[string]DecisionList

var (
	// ErrMalformedApproval marks an interrupt payload that fails validation.
	ErrMalformedApproval = errors.New("malformed approval request")
	// ErrDecisionMismatch is returned when an approver does not produce
	// exactly one decision per action request.
	ErrDecisionMismatch = errors.New("decision count does not match action requests")
)

var validate = validator.New()

// ParseApprovalRequest validates a raw interrupt payload. Accepted shapes are
// ApprovalRequest, *ApprovalRequest, JSON bytes or a decoded JSON object.
func ParseApprovalRequest(value any) (ApprovalRequest, error) {
	var req ApprovalRequest
	switch v := value.(type) {
	case ApprovalRequest:
		req = v
	case *ApprovalRequest:
		if v == nil {
			return ApprovalRequest{}, fmt.Errorf("%w: nil payload", ErrMalformedApproval)
		}
		req = *v
	case []byte:
		if err := json.Unmarshal(v, &req); err != nil {
			return ApprovalRequest{}, fmt.Errorf("%w: %v", ErrMalformedApproval, err)
		}
	case json.RawMessage:
		if err := json.Unmarshal(v, &req); err != nil {
			return ApprovalRequest{}, fmt.Errorf("%w: %v", ErrMalformedApproval, err)
		}
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return ApprovalRequest{}, fmt.Errorf("%w: %v", ErrMalformedApproval, err)
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return ApprovalRequest{}, fmt.Errorf("%w: %v", ErrMalformedApproval, err)
		}
	default:
		return ApprovalRequest{}, fmt.Errorf("%w: unsupported payload type %T", ErrMalformedApproval, value)
	}

	if err := validate.Struct(req); err != nil {
		return ApprovalRequest{}, fmt.Errorf("%w: %v", ErrMalformedApproval, err)
	}
	return req, nil
}

type ApprovalMode string

const (
	ModeAuto        ApprovalMode = "auto"
	ModeInteractive ApprovalMode = "interactive"
)

// Approver decides every action request of one approval request.
type Approver interface {
	Decide(ctx context.Context, interruptID string, req ApprovalRequest) ([]Decision, error)
	Mode() ApprovalMode
}

// AutoApprover approves everything. It is meant for unattended runs only.
type AutoApprover struct{}

func (AutoApprover) Decide(_ context.Context, _ string, req ApprovalRequest) ([]Decision, error) {
	decisions := make([]Decision, 0, len(req.ActionRequests))
	for range req.ActionRequests {
		decisions = append(decisions, Decision{Type: DecisionApprove})
	}
	return decisions, nil
}

func (AutoApprover) Mode() ApprovalMode {
	return ModeAuto
}

// ApprovalRecord is one resolved action, kept for the run summary.
type ApprovalRecord struct {
	Round       int
	InterruptID string
	Action      string
	Decision    Decision
	Mode        ApprovalMode
	Malformed   bool
}
