package domain

import (
	"context"
	"log/slog"
)

// ContinentResolver maps a callsign to its continent code (AF, AN, AS, EU,
// NA, OC, SA). Implementations shared between goroutines must be safe for
// concurrent use.
type ContinentResolver interface {
	Continent(ctx context.Context, callsign string) (string, error)
}

// probeSuffix turns a bare prefix into a plausible callsign for lookup.
const probeSuffix = "1AA"

type continentSide struct {
	name   string
	prefix func(*RawSpot) string
	cont   func(*RawSpot) *string
}

var continentSides = []continentSide{
	{
		name:   "de",
		prefix: func(r *RawSpot) string { return r.DePfx },
		cont:   func(r *RawSpot) *string { return &r.DeCont },
	},
	{
		name:   "dx",
		prefix: func(r *RawSpot) string { return r.DxPfx },
		cont:   func(r *RawSpot) *string { return &r.DxCont },
	},
}

// backfillContinents fills empty continent fields in rows by resolving each
// distinct prefix once. A failed lookup leaves the rows empty and is only
// logged. rows is modified in place.
func backfillContinents(ctx context.Context, rows []RawSpot, resolver ContinentResolver, logger *slog.Logger, stats *NormalizeStats) error {
	if resolver == nil {
		return nil
	}
	for _, side := range continentSides {
		var order []string
		pending := make(map[string][]int)
		for i := range rows {
			if *side.cont(&rows[i]) != "" {
				continue
			}
			pfx := side.prefix(&rows[i])
			if pfx == "" {
				continue
			}
			if _, seen := pending[pfx]; !seen {
				order = append(order, pfx)
			}
			pending[pfx] = append(pending[pfx], i)
		}

		for _, pfx := range order {
			if err := ctx.Err(); err != nil {
				return err
			}
			cont, err := resolver.Continent(ctx, pfx+probeSuffix)
			if err != nil || cont == "" {
				stats.UnresolvedPrefixes++
				logger.Warn("continent backfill failed",
					"side", side.name,
					"prefix", pfx,
					"error", err,
				)
				continue
			}
			stats.ResolvedPrefixes++
			for _, i := range pending[pfx] {
				*side.cont(&rows[i]) = cont
			}
		}
	}
	return nil
}
