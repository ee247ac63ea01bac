// Command validate checks Cabrillo logs for integrity problems before they
// are ingested: parse errors, missing headers, QSO lines that did not become
// contacts, contacts logged under a foreign callsign, duplicate contacts and
// implausible time spans.
//
// Usage:
//
//	go run ./cmd/validate [--max-span 48h] logs/*.log
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rogercaminal/hamcontestlog/internal/domain"
	"github.com/spf13/pflag"
)

// requiredHeaders must appear in every log.
var requiredHeaders = []string{"START-OF-LOG", "CALLSIGN", "CONTEST"}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// loadedLog is one input file together with its parse result.
type loadedLog struct {
	path     string
	raw      []byte
	log      domain.ParsedLog
	parseErr error
}

func main() {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	maxSpan := fs.Duration("max-span", 48*time.Hour, "longest plausible time between first and last contact")
	fs.Parse(os.Args[1:]) //nolint:errcheck // ExitOnError

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: validate [--max-span DURATION] <log>...")
		fs.PrintDefaults()
		os.Exit(1)
	}

	if code := run(fs.Args(), *maxSpan); code != 0 {
		os.Exit(code)
	}
}

func run(paths []string, maxSpan time.Duration) int {
	fmt.Println("=== Cabrillo Log Validation ===")
	fmt.Println()

	logs := make([]loadedLog, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", path, err)
			return 1
		}
		logs = append(logs, load(path, data))
	}

	phases := validate(logs, maxSpan)

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Logs: %d, contacts: %d\n", len(logs), countContacts(logs))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func load(path string, data []byte) loadedLog {
	l := loadedLog{path: path, raw: data}
	l.log, l.parseErr = domain.ParseCabrillo(bytes.NewReader(data))
	return l
}

func validate(logs []loadedLog, maxSpan time.Duration) []*phase {
	return []*phase{
		validateParse(logs),
		validateHeaders(logs),
		validateContactCount(logs),
		validateStation(logs),
		validateTimeline(logs, maxSpan),
	}
}

func countContacts(logs []loadedLog) int {
	n := 0
	for _, l := range logs {
		n += len(l.log.Contacts)
	}
	return n
}

// parsed yields the logs that parsed cleanly. Later phases only look at those.
func parsed(logs []loadedLog) []loadedLog {
	out := make([]loadedLog, 0, len(logs))
	for _, l := range logs {
		if l.parseErr == nil {
			out = append(out, l)
		}
	}
	return out
}

// ── Phase 1: Parse ──

func validateParse(logs []loadedLog) *phase {
	p := &phase{name: "Phase 1: Parse"}
	for _, l := range logs {
		if l.parseErr != nil {
			p.errorf("%s: %v", l.path, l.parseErr)
		}
	}
	return p
}

// ── Phase 2: Headers ──

func validateHeaders(logs []loadedLog) *phase {
	p := &phase{name: "Phase 2: Required headers"}
	for _, l := range parsed(logs) {
		for _, h := range requiredHeaders {
			if _, ok := l.log.Metadata[h]; !ok {
				p.errorf("%s: missing %s header", l.path, h)
			}
		}
		if l.log.Metadata.Callsign() == "" {
			if _, ok := l.log.Metadata["CALLSIGN"]; ok {
				p.errorf("%s: CALLSIGN header is empty", l.path)
			}
		}
	}
	return p
}

// ── Phase 3: Contact count ──
// Every QSO: line must have produced exactly one contact.

func validateContactCount(logs []loadedLog) *phase {
	p := &phase{name: "Phase 3: QSO lines vs contacts"}
	for _, l := range parsed(logs) {
		lines := countQSOLines(l.raw)
		if lines != len(l.log.Contacts) {
			p.errorf("%s: %d QSO lines but %d contacts", l.path, lines, len(l.log.Contacts))
		}
	}
	return p
}

func countQSOLines(data []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if strings.HasPrefix(strings.TrimSpace(sc.Text()), "QSO:") {
			n++
		}
	}
	return n
}

// ── Phase 4: Station consistency ──

func validateStation(logs []loadedLog) *phase {
	p := &phase{name: "Phase 4: Station consistency"}
	for _, l := range parsed(logs) {
		station := strings.ToUpper(l.log.Metadata.Callsign())
		seenIDs := make(map[string]bool, len(l.log.Contacts))
		seenQSO := make(map[string]int, len(l.log.Contacts))
		for i, c := range l.log.Contacts {
			if station != "" && !strings.EqualFold(c.MyCall, station) {
				p.errorf("%s: contact %d logged by %s, header says %s", l.path, i, c.MyCall, station)
			}
			if seenIDs[c.ID] {
				p.errorf("%s: duplicate contact id %s", l.path, c.ID)
			}
			seenIDs[c.ID] = true

			key := fmt.Sprintf("%s|%d|%s|%s", strings.ToUpper(c.Call), c.Frequency, c.Mode, c.Datetime.Format(time.RFC3339))
			if prev, dup := seenQSO[key]; dup {
				p.errorf("%s: contact %d with %s repeats contact %d", l.path, i, c.Call, prev)
				continue
			}
			seenQSO[key] = i
		}
	}
	return p
}

// ── Phase 5: Timeline ──

func validateTimeline(logs []loadedLog, maxSpan time.Duration) *phase {
	p := &phase{name: "Phase 5: Timeline"}
	for _, l := range parsed(logs) {
		if len(l.log.Contacts) == 0 {
			continue
		}
		first, last := l.log.Contacts[0].Datetime, l.log.Contacts[0].Datetime
		for _, c := range l.log.Contacts[1:] {
			if c.Datetime.Before(first) {
				first = c.Datetime
			}
			if c.Datetime.After(last) {
				last = c.Datetime
			}
		}
		if span := last.Sub(first); span > maxSpan {
			p.errorf("%s: contacts span %s (%s to %s), limit %s", l.path, span,
				first.Format(time.DateTime), last.Format(time.DateTime), maxSpan)
		}
	}
	return p
}
