package domain

// ICECandidate is a remote candidate delivered by an "ice" message.
type ICECandidate struct {
	Candidate  string `json:"ice"`
	MLineIndex int    `json:"mlineindex"`
}

// SDPAnswer is the body of an "sdp" message.
type SDPAnswer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CloseReason is the body of a remote "close" message.
type CloseReason struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}
