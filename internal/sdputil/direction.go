package sdputil

import "strings"

var directionKeywords = map[string]struct{}{
	"sendrecv": {},
	"sendonly": {},
	"recvonly": {},
	"inactive": {},
}

// FixAnswerDirectionality rewrites "a=sendrecv" to "a=sendonly" in every
// answer media section whose offer counterpart is "a=recvonly", and drops
// the trailing direction keyword the server appends to that section's
// extmap lines. Sections are paired by position.
func FixAnswerDirectionality(offer, answer string) string {
	offerSections := splitSections(offer)
	answerSections := splitSections(answer)

	// index 0 is the session-level block, media sections follow
	for i := 1; i < len(answerSections) && i < len(offerSections); i++ {
		if !hasAttribute(offerSections[i], "a=recvonly") || !hasAttribute(answerSections[i], "a=sendrecv") {
			continue
		}
		answerSections[i] = rewriteSection(answerSections[i])
	}
	return strings.Join(flatten(answerSections), "")
}

func rewriteSection(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		text := trimEOL(line)
		eol := line[len(text):]
		switch {
		case text == "a=sendrecv":
			out[i] = "a=sendonly" + eol
		case strings.HasPrefix(text, "a=extmap:"):
			out[i] = stripExtmapDirection(text) + eol
		default:
			out[i] = line
		}
	}
	return out
}

// stripExtmapDirection removes a trailing direction keyword from an
// "a=extmap:<id> <uri> <direction>" line, keeping id and uri.
func stripExtmapDirection(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return text
	}
	if _, ok := directionKeywords[fields[len(fields)-1]]; !ok {
		return text
	}
	cut := strings.LastIndex(text, fields[len(fields)-1])
	return strings.TrimRight(text[:cut], " \t")
}

func splitSections(s string) [][]string {
	sections := [][]string{{}}
	for _, line := range splitLines(s) {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "m=") {
			sections = append(sections, []string{})
		}
		last := len(sections) - 1
		sections[last] = append(sections[last], line)
	}
	return sections
}

func hasAttribute(lines []string, attr string) bool {
	for _, line := range lines {
		if trimEOL(line) == attr {
			return true
		}
	}
	return false
}

func flatten(sections [][]string) []string {
	var out []string
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}
