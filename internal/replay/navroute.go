package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/runger/edjournal/internal/journal"
)

// navRouteFile mirrors NavRoute.json, which the game rewrites whenever a
// route is plotted.
type navRouteFile struct {
	Timestamp time.Time          `json:"timestamp"`
	Event     string             `json:"event"`
	Route     []journal.RouteHop `json:"Route"`
}

// readNavRoute returns the hops in NavRoute.json when the file belongs to
// the NavRoute event at plotted. A missing file or a route written for a
// different plot yields no hops and no error.
func readNavRoute(path string, plotted time.Time) ([]journal.RouteHop, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f navRouteFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if !plotted.IsZero() && !f.Timestamp.Equal(plotted) {
		return nil, nil
	}
	return f.Route, nil
}
