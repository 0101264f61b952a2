package fetcher

import (
	"golang.org/x/sync/singleflight"
)

// Group dedupes concurrent fetches of the same resource.
type Group struct {
	g singleflight.Group
}

func (g *Group) Do(key string, fn func() (any, error)) (any, error, bool) {
	v, err, shared := g.g.Do(key, fn)
	return v, err, shared
}
