package progress

import (
	"net/http"
	"slices"
	"strings"

	"codeberg.org/docforge/server/internal/logger"
)

// splits a comma separated ALLOWED_ORIGINS value
func ParseOrigins(raw string) []string {
	var origins []string

	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return origins
}

// outside production any origin is accepted; in production the origin must be listed
func OriginChecker(production bool, allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if !production {
			return true
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			logger.Warn("websocket connection with no origin header")
			return false
		}

		if slices.Contains(allowed, origin) {
			return true
		}

		logger.Warn("websocket origin rejected - not in allowed origins",
			"origin", origin,
		)

		return false
	}
}
