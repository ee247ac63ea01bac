package domain

import "time"

// RawSpot is one untyped row of an RBN daily CSV. Empty strings stand for
// missing values.
type RawSpot struct {
	Callsign string `csv:"callsign"`
	DePfx    string `csv:"de_pfx"`
	DeCont   string `csv:"de_cont"`
	Freq     string `csv:"freq"`
	Band     string `csv:"band"`
	DX       string `csv:"dx"`
	DxPfx    string `csv:"dx_pfx"`
	DxCont   string `csv:"dx_cont"`
	Mode     string `csv:"mode"`
	DB       string `csv:"db"`
	Date     string `csv:"date"`
	Speed    string `csv:"speed"`
}

// RawSpotTable is one day of RBN rows together with the header that was
// actually present in the source files.
type RawSpotTable struct {
	Header []string
	Rows   []RawSpot
}

// RawSpotColumns is the full RBN header known to this package.
var RawSpotColumns = []string{
	"callsign", "de_pfx", "de_cont", "freq", "band", "dx",
	"dx_pfx", "dx_cont", "mode", "db", "date", "speed",
}

// RequiredSpotColumns must all be present for a table to be normalized.
// The prefix columns only feed continent backfill and may be missing.
var RequiredSpotColumns = []string{
	"callsign", "freq", "band", "dx", "mode", "db", "date", "speed", "de_cont", "dx_cont",
}

// Spot is a cleaned RBN observation.
type Spot struct {
	ID       string    `json:"id"`
	Callsign string    `json:"callsign"`
	Freq     float64   `json:"freq"`
	Band     int       `json:"band"`
	DX       string    `json:"dx"`
	Mode     string    `json:"mode"`
	DB       int       `json:"db"`
	Speed    int       `json:"speed"`
	DeCont   *string   `json:"de_cont"`
	DxCont   *string   `json:"dx_cont"`
	Datetime time.Time `json:"datetime"`
}

// NormalizeStats summarizes one NormalizeSpots call.
type NormalizeStats struct {
	Input              int
	DroppedNullDX      int
	DroppedBand        int
	Output             int
	ResolvedPrefixes   int
	UnresolvedPrefixes int
}
