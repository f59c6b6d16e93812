package domain

// Ticket is the short-lived credential returned by the signalsocket ticket endpoint.
type Ticket struct {
	Ticket string `json:"ticket"`
}

// Device is the subset of a registered device the live-view client needs.
type Device struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Family      string `json:"-"`
}
