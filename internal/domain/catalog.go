package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownStation is returned when a requested callsign has no public log.
var ErrUnknownStation = errors.New("station has no public log")

// LogRef points at one published log in a contest catalog.
type LogRef struct {
	Callsign string `json:"callsign"`
	URL      string `json:"url"`
}

// maxSuggestDistance bounds how far a suggestion may be from the request.
const maxSuggestDistance = 2

// SelectLogs keeps the refs whose callsign is in calls, matching case
// insensitively and preserving the order of calls. An empty calls list
// selects everything. Unknown calls fail with ErrUnknownStation, naming the
// closest published callsign when one is near.
func SelectLogs(refs []LogRef, calls []string) ([]LogRef, error) {
	if len(calls) == 0 {
		return refs, nil
	}
	byCall := make(map[string]LogRef, len(refs))
	for _, r := range refs {
		byCall[strings.ToUpper(r.Callsign)] = r
	}

	out := make([]LogRef, 0, len(calls))
	for _, c := range calls {
		want := strings.ToUpper(strings.TrimSpace(c))
		ref, ok := byCall[want]
		if !ok {
			if s := closestCall(want, refs); s != "" {
				return nil, fmt.Errorf("%w: %s (did you mean %s?)", ErrUnknownStation, want, s)
			}
			return nil, fmt.Errorf("%w: %s", ErrUnknownStation, want)
		}
		out = append(out, ref)
	}
	return out, nil
}

func closestCall(want string, refs []LogRef) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, r := range refs {
		d := levenshtein.ComputeDistance(want, strings.ToUpper(r.Callsign))
		if d < bestDist {
			best, bestDist = r.Callsign, d
		}
	}
	return best
}
