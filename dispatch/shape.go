package dispatch

import "github.com/osakka/tagdir/pathparser"

// EntInfoPath is the well-known pseudo-path the xattr side channel
// listens on.
const EntInfoPath = "/.entinfo"

// shapeKind is the closed set of path shapes the Dispatcher classifies
// every operation into.
type shapeKind int

const (
	shapeRoot shapeKind = iota
	shapeEntInfo
	shapeTagOnly
	shapeEntitySymlink
	shapePassThrough
	shapeInvalid
)

// shape is the result of classifying a path: the shapeKind plus the
// parsed tags/entity/remainder the handlers need.
type shape struct {
	kind   shapeKind
	tags   []string
	entity string
	rest   string
}

// classify parses path and determines which of the five shapes it is.
func classify(path string) shape {
	if path == "/" {
		return shape{kind: shapeRoot}
	}
	if path == EntInfoPath {
		return shape{kind: shapeEntInfo}
	}

	p := pathparser.Parse(path)

	switch {
	case len(p.Tags) == 0:
		// Tags empty and an entity-looking component present, or a
		// malformed path with neither tags nor entity (e.g. parse
		// somehow yielding nothing) — both are Invalid.
		return shape{kind: shapeInvalid, entity: p.Entity, rest: p.Rest}
	case !p.HasEnt:
		return shape{kind: shapeTagOnly, tags: p.Tags}
	case !p.HasRest:
		return shape{kind: shapeEntitySymlink, tags: p.Tags, entity: p.Entity}
	default:
		return shape{kind: shapePassThrough, tags: p.Tags, entity: p.Entity, rest: p.Rest}
	}
}
