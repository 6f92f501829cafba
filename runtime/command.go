package runtime

import (
	"fmt"

	"github.com/agusx1211/hitlctl/config"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionEdit    Decision = "edit"
)

// Resume is the operator's decision in tagged form.
type Resume struct {
	Type    Decision       `json:"type"`
	Message string         `json:"message,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

// Command is the resume payload sent in place of a fresh run input. Resume
// holds either a bool or a Resume, depending on the deployment's encoding.
type Command struct {
	Resume any `json:"resume"`
}

// StatePatch updates thread values as if written by AsNode.
type StatePatch struct {
	Values any    `json:"values"`
	AsNode string `json:"as_node,omitempty"`
}

// EncodeResume renders a decision with the given encoding. The bool encoding
// cannot carry a reason or arguments, so those travel in a state patch first.
func EncodeResume(encoding string, r Resume) (*Command, error) {
	switch r.Type {
	case DecisionApprove, DecisionReject, DecisionEdit:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecision, r.Type)
	}
	switch encoding {
	case config.EncodingBool:
		return &Command{Resume: r.Type != DecisionReject}, nil
	case config.EncodingTagged, "":
		return &Command{Resume: r}, nil
	}
	return nil, fmt.Errorf("unknown resume encoding %q", encoding)
}
