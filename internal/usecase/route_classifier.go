package usecase

import (
	"strings"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

// RouteClassifier assigns every path to exactly one route class using the static route table.
type RouteClassifier struct {
	lists [4][]string
}

// NewRouteClassifier normalises the configured route lists.
func NewRouteClassifier(table domain.RouteTable) *RouteClassifier {
	c := &RouteClassifier{}
	c.lists[domain.RouteClassPublic] = normalizeRoutes(table.Public)
	c.lists[domain.RouteClassAuthOnly] = normalizeRoutes(table.AuthOnly)
	c.lists[domain.RouteClassProtected] = normalizeRoutes(table.Protected)
	c.lists[domain.RouteClassAdmin] = normalizeRoutes(table.Admin)
	return c
}

// Classify returns the class of the longest matching route. Paths matching no route are public.
// On equal match length the more restrictive class wins.
func (c *RouteClassifier) Classify(path string) domain.RouteClass {
	target := NormalizePath(path)

	best := domain.RouteClassPublic
	bestLen := -1
	for class := domain.RouteClassPublic; class <= domain.RouteClassAdmin; class++ {
		for _, route := range c.lists[class] {
			if !routeMatches(target, route) {
				continue
			}
			if len(route) >= bestLen {
				best = class
				bestLen = len(route)
			}
		}
	}
	return best
}

// Matches reports whether the path belongs to one of the routes of the supplied classes.
func (c *RouteClassifier) Matches(path string, classes ...domain.RouteClass) bool {
	target := NormalizePath(path)
	for _, class := range classes {
		if class < domain.RouteClassPublic || class > domain.RouteClassAdmin {
			continue
		}
		for _, route := range c.lists[class] {
			if routeMatches(target, route) {
				return true
			}
		}
	}
	return false
}

// NormalizePath strips query and fragment, forces a leading slash and drops trailing slashes.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func routeMatches(path, route string) bool {
	if path == route {
		return true
	}
	if route == "/" {
		return false
	}
	return strings.HasPrefix(path, route+"/")
}

func normalizeRoutes(routes []string) []string {
	out := make([]string, 0, len(routes))
	seen := make(map[string]struct{}, len(routes))
	for _, route := range routes {
		if strings.TrimSpace(route) == "" {
			continue
		}
		normalized := NormalizePath(route)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
