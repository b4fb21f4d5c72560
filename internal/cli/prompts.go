package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/dyike/CortexDesk/internal/hitl"
)

type askFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

type approverFactory func(out io.Writer) hitl.Approver

// surveyApprover asks on the terminal for every gated action.
type surveyApprover struct {
	out io.Writer
	ask askFunc
}

func newSurveyApprover(out io.Writer) hitl.Approver {
	return &surveyApprover{out: out, ask: survey.AskOne}
}

func (s *surveyApprover) Mode() hitl.ApprovalMode {
	return hitl.ModeInteractive
}

func (s *surveyApprover) Decide(ctx context.Context, _ string, req hitl.ApprovalRequest) ([]hitl.Decision, error) {
	decisions := make([]hitl.Decision, 0, len(req.ActionRequests))
	for _, action := range req.ActionRequests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if action.Description != "" {
			fmt.Fprintf(s.out, "\n%s\n", action.Description)
		}

		var approved bool
		confirm := &survey.Confirm{
			Message: fmt.Sprintf("Approve %s?", action.Name),
			Default: false,
		}
		if err := s.ask(confirm, &approved); err != nil {
			return nil, promptError(err)
		}
		if approved {
			decisions = append(decisions, hitl.Decision{Type: hitl.DecisionApprove})
			continue
		}

		var reason string
		input := &survey.Input{Message: "Reason for the agent (optional):"}
		if err := s.ask(input, &reason); err != nil {
			return nil, promptError(err)
		}
		decisions = append(decisions, hitl.Decision{Type: hitl.DecisionReject, Message: reason})
	}
	return decisions, nil
}

func promptError(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return context.Canceled
	}
	return fmt.Errorf("approval prompt: %w", err)
}
