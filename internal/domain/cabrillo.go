package domain

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"
)

const (
	// contactMarker starts every QSO line.
	contactMarker = "QSO:"

	// qsoTimeLayout is the combined "date time" layout of a QSO line.
	qsoTimeLayout = "2006-01-02 1504"

	// minContactTokens counts the marker plus the ten positional fields.
	minContactTokens = 11

	// radioToken is the index of the optional transmitter number.
	radioToken = 11

	defaultRadio = "0"

	// maxLineBytes bounds a single Cabrillo line; SOAPBOX lines can be long.
	maxLineBytes = 1 << 20
)

// ignoredMarkers prefix lines that are neither contacts nor metadata.
// X-QSO lines are contacts the operator asked the checker to disregard.
var ignoredMarkers = []string{"X-QSO"}

// ParseCabrillo reads a complete Cabrillo log from r.
func ParseCabrillo(r io.Reader) (ParsedLog, error) {
	p := newCabrilloParser()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		if err := p.parseLine(n, sc.Text()); err != nil {
			return ParsedLog{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return ParsedLog{}, fmt.Errorf("read cabrillo log: %w", err)
	}
	return p.result(), nil
}

// ParseCabrilloText parses a log that is already held in memory.
func ParseCabrilloText(text string) (ParsedLog, error) {
	return ParseCabrillo(strings.NewReader(text))
}

// ParseCabrilloLines parses a lazily produced sequence of lines. Line
// terminators, if present, are ignored.
func ParseCabrilloLines(lines iter.Seq[string]) (ParsedLog, error) {
	p := newCabrilloParser()
	n := 0
	for line := range lines {
		n++
		if err := p.parseLine(n, strings.TrimRight(line, "\r\n")); err != nil {
			return ParsedLog{}, err
		}
	}
	return p.result(), nil
}

type cabrilloParser struct {
	meta     ContestMetadata
	contacts []Contact
}

func newCabrilloParser() *cabrilloParser {
	return &cabrilloParser{
		meta:     ContestMetadata{},
		contacts: []Contact{},
	}
}

func (p *cabrilloParser) parseLine(n int, line string) error {
	line = strings.TrimSuffix(line, "\r")
	switch {
	case strings.HasPrefix(line, contactMarker):
		c, err := parseContact(n, line)
		if err != nil {
			return err
		}
		c.ID = contactID(c.MyCall, len(p.contacts))
		p.contacts = append(p.contacts, c)
	case hasIgnoredMarker(line):
	default:
		p.parseMetadata(line)
	}
	return nil
}

// parseMetadata stores a "KEY: value" line. Only the first colon separates
// key from value, so values such as "CREATED-BY: N1MM Logger+ 1.0:10" keep
// their own colons. Blank lines carry nothing and are skipped.
func (p *cabrilloParser) parseMetadata(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	key, value, _ := strings.Cut(trimmed, ":")
	p.meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
}

func (p *cabrilloParser) result() ParsedLog {
	return ParsedLog{Metadata: p.meta, Contacts: p.contacts}
}

func hasIgnoredMarker(line string) bool {
	for _, m := range ignoredMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// parseContact splits a QSO line into its positional fields:
//
//	QSO: freq mo date       time mycall myrst myexch call rst exch [radio]
//	QSO: 7044 CW 2024-11-23 0000 EF6T   599   14     YR8D 599 20   0
func parseContact(n int, line string) (Contact, error) {
	tok := strings.Fields(line)
	if len(tok) < minContactTokens {
		return Contact{}, &MalformedRecordError{
			Line:   n,
			Text:   line,
			Reason: fmt.Sprintf("expected at least %d tokens, got %d", minContactTokens, len(tok)),
		}
	}

	freq, err := strconv.Atoi(tok[1])
	if err != nil {
		return Contact{}, &MalformedRecordError{Line: n, Text: line, Reason: "invalid frequency", Err: err}
	}
	ts, err := time.ParseInLocation(qsoTimeLayout, tok[3]+" "+tok[4], time.UTC)
	if err != nil {
		return Contact{}, &MalformedRecordError{Line: n, Text: line, Reason: "invalid date/time", Err: err}
	}
	myrst, err := strconv.Atoi(tok[6])
	if err != nil {
		return Contact{}, &MalformedRecordError{Line: n, Text: line, Reason: "invalid sent report", Err: err}
	}

	radio := defaultRadio
	if len(tok) > radioToken {
		radio = tok[radioToken]
	}

	return Contact{
		Frequency: freq,
		Mode:      tok[2],
		Datetime:  ts,
		MyCall:    tok[5],
		MyRST:     myrst,
		MyExch:    tok[7],
		Call:      tok[8],
		RST:       tok[9],
		Exch:      tok[10],
		Radio:     radio,
	}, nil
}
