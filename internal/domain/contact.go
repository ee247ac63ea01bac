package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContestMetadata holds the free-form "KEY: value" header lines of one log.
type ContestMetadata map[string]string

// Callsign returns the CALLSIGN header, or "" when the log has none.
func (m ContestMetadata) Callsign() string { return m["CALLSIGN"] }

// Contest returns the CONTEST header, or "" when the log has none.
func (m ContestMetadata) Contest() string { return m["CONTEST"] }

// Contact is one QSO line of a Cabrillo log.
type Contact struct {
	ID        string    `json:"id"`
	Frequency int       `json:"frequency"`
	Mode      string    `json:"mode"`
	Datetime  time.Time `json:"datetime"`
	MyCall    string    `json:"mycall"`
	MyRST     int       `json:"myrst"`
	MyExch    string    `json:"myexch"`
	Call      string    `json:"call"`
	RST       string    `json:"rst"`
	Exch      string    `json:"exch"`
	Radio     string    `json:"radio"`
}

// ParsedLog is the result of parsing one Cabrillo log: a single metadata row
// plus the contacts in file order.
type ParsedLog struct {
	Metadata ContestMetadata `json:"metadata"`
	Contacts []Contact       `json:"contacts"`
}

// Station returns the identity used to key metadata rows in storage. The
// CALLSIGN header wins; logs without one fall back to the first contact's
// mycall.
func (l ParsedLog) Station() string {
	if c := strings.TrimSpace(l.Metadata.Callsign()); c != "" {
		return c
	}
	if len(l.Contacts) > 0 {
		return l.Contacts[0].MyCall
	}
	return ""
}

// contactID builds the per-parse contact identity. It is positional, so the
// same contact parsed from a reordered file gets a different id.
func contactID(mycall string, index int) string {
	return fmt.Sprintf("%s_%d", mycall, index)
}

// Edition names the storage namespace for one contest run, e.g. "cw2024".
func Edition(mode string, year int) string {
	return fmt.Sprintf("%s%d", strings.ToLower(mode), year)
}
