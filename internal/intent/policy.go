package intent

import "github.com/Ananth-NQI/chatdesk-backend/internal/models"

// Decision says whether a classified message must go to a human
type Decision struct {
	Handoff  bool
	Reason   string
	Priority string
}

// Handoff reasons
const (
	ReasonFrustrated   = "Customer appears frustrated"
	ReasonHumanRequest = "Customer requested a human agent"
	ReasonOutOfScope   = "Request is outside what the assistant can handle"
)

// ShouldHandoff decides escalation from a classification. It has no side
// effects; callers perform the handoff.
func ShouldHandoff(r Result) Decision {
	switch r.Intent {
	case HumanRequest:
		if r.Metadata.Frustrated {
			return Decision{Handoff: true, Reason: ReasonFrustrated, Priority: models.PriorityHigh}
		}
		return Decision{Handoff: true, Reason: ReasonHumanRequest, Priority: models.PriorityNormal}
	case OutOfScope:
		return Decision{Handoff: true, Reason: ReasonOutOfScope, Priority: models.PriorityNormal}
	default:
		return Decision{}
	}
}
