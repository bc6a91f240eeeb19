package domain

// StatusState is a GitHub commit status state.
type StatusState string

const (
	StatusPending StatusState = "pending"
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
	StatusError   StatusState = "error"
)

// StatusContext labels every status this service posts.
const StatusContext = "Snap Builder"

// StatusUpdate is one commit status transmission.
type StatusUpdate struct {
	State       StatusState
	Description string
	TargetURL   string // optional
	Context     string
}
