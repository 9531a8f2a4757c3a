// Package config holds the static rate limit table. Limits are compiled in;
// there is no per-tenant override surface.
package config

import (
	"time"

	"tally/internal/ratelimit/models"
)

var limits = map[models.Class]models.Limit{
	models.ClassAuth: {Ceiling: 10, Window: 60 * time.Second},
	models.ClassAPI:  {Ceiling: 30, Window: 60 * time.Second},
}

// LimitFor returns the limit for a class. Unknown classes fall back to the
// API limit rather than going unlimited.
func LimitFor(class models.Class) models.Limit {
	if limit, ok := limits[class]; ok {
		return limit
	}
	return limits[models.ClassAPI]
}
