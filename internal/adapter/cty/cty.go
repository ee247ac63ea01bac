// Package cty resolves callsigns to continents using the country-files.com
// cty.plist database.
package cty

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rogercaminal/hamcontestlog/internal/domain"
	"howett.net/plist"
)

// DefaultURL is where country-files.com publishes the plist edition.
const DefaultURL = "https://www.country-files.com/cty/cty.plist"

// PrefixInfo is one entry of cty.plist.
type PrefixInfo struct {
	Country       string  `plist:"Country"`
	Prefix        string  `plist:"Prefix"`
	ADIF          int     `plist:"ADIF"`
	CQZone        int     `plist:"CQZone"`
	ITUZone       int     `plist:"ITUZone"`
	Continent     string  `plist:"Continent"`
	Latitude      float64 `plist:"Latitude"`
	Longitude     float64 `plist:"Longitude"`
	GMTOffset     float64 `plist:"GMTOffset"`
	ExactCallsign bool    `plist:"ExactCallsign"`
}

// Database is an immutable prefix table. It implements
// domain.ContinentResolver and is safe for concurrent use.
type Database struct {
	entries   map[string]PrefixInfo
	maxKeyLen int
}

// Load reads a cty.plist file from disk.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cty plist: %w", err)
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader decodes a cty.plist document.
func LoadReader(r io.ReadSeeker) (*Database, error) {
	var raw map[string]PrefixInfo
	if err := plist.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode cty plist: %w", err)
	}
	db := &Database{entries: make(map[string]PrefixInfo, len(raw))}
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		db.entries[key] = v
		db.maxKeyLen = max(db.maxKeyLen, len(key))
	}
	return db, nil
}

// Len reports the number of prefixes loaded.
func (db *Database) Len() int { return len(db.entries) }

// Lookup finds the longest prefix entry for callsign. Exact-callsign
// entries only match the whole call.
func (db *Database) Lookup(callsign string) (PrefixInfo, bool) {
	cs := normalizeCallsign(callsign)
	if cs == "" {
		return PrefixInfo{}, false
	}
	if info, ok := db.entries[cs]; ok {
		return info, true
	}
	for n := min(len(cs)-1, db.maxKeyLen); n > 0; n-- {
		info, ok := db.entries[cs[:n]]
		if ok && !info.ExactCallsign {
			return info, true
		}
	}
	return PrefixInfo{}, false
}

// Continent implements domain.ContinentResolver.
func (db *Database) Continent(_ context.Context, callsign string) (string, error) {
	info, ok := db.Lookup(callsign)
	if !ok || info.Continent == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrResolutionMiss, callsign)
	}
	return info.Continent, nil
}

var portableSuffixes = []string{"/QRP", "/MM", "/AM", "/P", "/M"}

func normalizeCallsign(cs string) string {
	cs = strings.ToUpper(strings.TrimSpace(cs))
	for _, suf := range portableSuffixes {
		if strings.HasSuffix(cs, suf) {
			return strings.TrimSuffix(cs, suf)
		}
	}
	return cs
}
