package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePointWKT parses a WKT POINT string into (lat, lon).
// PostGIS ST_AsText on a geography(POINT, 4326) returns "POINT(lon lat)".
func parsePointWKT(wkt string) (lat, lon float64, err error) {
	wkt = strings.TrimSpace(wkt)
	if !strings.HasPrefix(wkt, "POINT(") || !strings.HasSuffix(wkt, ")") {
		return 0, 0, fmt.Errorf("unexpected WKT format: %q", wkt)
	}

	inner := wkt[len("POINT(") : len(wkt)-1]
	parts := strings.Fields(inner)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected WKT coordinates: %q", inner)
	}

	lon, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse lon %q: %v", parts[0], err)
	}

	lat, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse lat %q: %v", parts[1], err)
	}

	return lat, lon, nil
}
