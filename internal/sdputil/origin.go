// Package sdputil holds the text transforms applied to SDP offers and
// answers exchanged with the live-view signalling server.
package sdputil

import (
	"strings"

	"github.com/pion/sdp/v3"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("module", "sdputil")

// ExtractSessionOriginID returns the session id token of the offer's
// origin line. It reports false when the line is missing or malformed.
func ExtractSessionOriginID(offer string) (string, bool) {
	for _, line := range splitLines(offer) {
		text := trimEOL(line)
		if !strings.HasPrefix(text, "o=") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(text, "o="))
		if len(fields) < 2 {
			logger.WithField("line", text).Warn("malformed origin line in offer")
			return "", false
		}
		return fields[1], true
	}
	logger.Warn("no origin line in offer")
	return "", false
}

// Validate reports whether s parses as a session description.
func Validate(s string) error {
	var desc sdp.SessionDescription
	return desc.UnmarshalString(s)
}

// splitLines splits on "\n" and keeps any "\r" on each line so callers
// can rebuild the text byte for byte.
func splitLines(s string) []string {
	return strings.SplitAfter(s, "\n")
}

func trimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}
