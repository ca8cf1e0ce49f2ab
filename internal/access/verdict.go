package access

import "encoding/json"

// RequiredActiveSubscription is reported as the required plan when the
// subscription itself, not the plan tier, blocks access.
const RequiredActiveSubscription = "active subscription"

// Verdict is the result of an access check. Denials are values, not errors.
type Verdict struct {
	HasAccess     bool
	BlockedByPlan bool
	BlockedByRole bool
	RequiredPlan  string
	Message       string
}

func allow() Verdict { return Verdict{HasAccess: true} }

func denyByPlan(requiredPlan, message string) Verdict {
	return Verdict{BlockedByPlan: true, RequiredPlan: requiredPlan, Message: message}
}

func denyByRole(message string) Verdict {
	return Verdict{BlockedByRole: true, Message: message}
}

// Outcome names the verdict for metrics and logs: "allowed", "plan" or "role".
func (v Verdict) Outcome() string {
	switch {
	case v.HasAccess:
		return "allowed"
	case v.BlockedByPlan:
		return "plan"
	default:
		return "role"
	}
}

type verdictJSON struct {
	HasAccess     bool    `json:"hasAccess"`
	BlockedByPlan bool    `json:"blockedByPlan"`
	BlockedByRole bool    `json:"blockedByRole"`
	RequiredPlan  *string `json:"requiredPlan"`
	Message       *string `json:"message"`
}

// MarshalJSON renders empty requiredPlan and message as null.
func (v Verdict) MarshalJSON() ([]byte, error) {
	out := verdictJSON{
		HasAccess:     v.HasAccess,
		BlockedByPlan: v.BlockedByPlan,
		BlockedByRole: v.BlockedByRole,
	}
	if v.RequiredPlan != "" {
		rp := v.RequiredPlan
		out.RequiredPlan = &rp
	}
	if v.Message != "" {
		msg := v.Message
		out.Message = &msg
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the format produced by MarshalJSON.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var in verdictJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*v = Verdict{HasAccess: in.HasAccess, BlockedByPlan: in.BlockedByPlan, BlockedByRole: in.BlockedByRole}
	if in.RequiredPlan != nil {
		v.RequiredPlan = *in.RequiredPlan
	}
	if in.Message != nil {
		v.Message = *in.Message
	}
	return nil
}
