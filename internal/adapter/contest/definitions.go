package contest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed contests.yaml
var defaultDefinitions []byte

// Definition describes where a contest publishes its logs.
type Definition struct {
	Name            string   `yaml:"name"`
	Title           string   `yaml:"title"`
	ParticipantsURL string   `yaml:"participants_url"`
	YearIndexURL    string   `yaml:"year_index_url"`
	Modes           []string `yaml:"modes"`
}

// SupportsMode reports whether mode is valid for the contest. An empty mode
// list accepts any mode.
func (d Definition) SupportsMode(mode string) bool {
	return len(d.Modes) == 0 || slices.Contains(d.Modes, strings.ToLower(mode))
}

type definitionsFile struct {
	Contests []Definition `yaml:"contests"`
}

// LoadDefinitions decodes a contests YAML document.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var f definitionsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode contest definitions: %w", err)
	}

	seen := make(map[string]bool, len(f.Contests))
	for i, d := range f.Contests {
		switch {
		case d.Name == "":
			return nil, fmt.Errorf("contest %d: name is required", i)
		case seen[d.Name]:
			return nil, fmt.Errorf("contest %s: defined twice", d.Name)
		case d.ParticipantsURL == "" && d.YearIndexURL == "":
			return nil, fmt.Errorf("contest %s: participants_url or year_index_url is required", d.Name)
		}
		seen[d.Name] = true
		for j, m := range d.Modes {
			f.Contests[i].Modes[j] = strings.ToLower(m)
		}
	}
	return f.Contests, nil
}

// DefaultDefinitions returns the built-in contest list.
func DefaultDefinitions() []Definition {
	defs, err := LoadDefinitions(bytes.NewReader(defaultDefinitions))
	if err != nil {
		panic(err)
	}
	return defs
}

// LoadDefinitionsFile reads definitions from path, or the built-in list when
// path is empty.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	if path == "" {
		return DefaultDefinitions(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open contest definitions: %w", err)
	}
	defer f.Close()
	return LoadDefinitions(f)
}

// ErrUnknownContest is returned by Find for names not in the list.
var ErrUnknownContest = errors.New("unknown contest")

// Find returns the definition called name.
func Find(defs []Definition, name string) (Definition, error) {
	for _, d := range defs {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %s", ErrUnknownContest, name)
}
