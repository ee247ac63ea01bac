// Package domain models amateur-radio contest logs and Reverse Beacon
// Network (RBN) spots.
//
// # Cabrillo Logs
//
// A Cabrillo log is line oriented. Header lines are "KEY: value" pairs and
// contacts are fixed-position QSO lines:
//
//	START-OF-LOG: 3.0
//	CALLSIGN: EF6T
//	CONTEST: CQ-WW-CW
//	CATEGORY-OVERLAY:
//	QSO:    7044 CW 2024-11-23 0000 EF6T    599 14    YR8D    599  20      0
//	END-OF-LOG:
//
// Frequencies are integers in kHz. Date and time are UTC, minute precision,
// written "YYYY-MM-DD HHMM". The trailing transmitter number only appears in
// multi-transmitter logs and defaults to "0". Lines starting with X-QSO are
// contacts the operator withdrew; they are skipped.
//
// Header keys are free form. Duplicate keys keep the last value, a key with
// nothing after the colon maps to "" and blank lines are ignored.
//
// # Contact IDs
//
// A contact id is "{mycall}_{index}" with the zero-based position of the QSO
// line within the parse. It is unique within one log only and changes when
// lines are reordered or removed upstream. Storage deduplicates on it as is.
//
// # RBN Spots
//
// RBN publishes one zip per UTC day holding CSV files with the columns listed
// in [RawSpotColumns]. [NormalizeSpots] backfills missing continents from
// the de_pfx/dx_pfx columns by probing "{prefix}1AA" against a
// [ContinentResolver], drops rows without a dx call and rows whose band is
// not a plain meter band ("20m" passes, "23cm" does not), then types every
// column.
//
// Continent codes are taken verbatim: "NA" is North America, not a missing
// value.
//
// # Spot IDs
//
// Spot ids are the SHA-256 hex digest of dx + callsign + date + freq, where
// date is the raw string from the archive and freq is rendered with a
// fractional part ("14025.0"). Identical observations from different archive
// files therefore collapse to the same id, which storage uses for
// ON CONFLICT DO NOTHING inserts. See [SpotID].
package domain
