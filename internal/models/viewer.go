package models

import "context"

type viewerKey struct{}

// Viewer identifies who a search is performed for.
type Viewer struct {
	Name   string
	Groups []string
	Admin  bool
}

// InGroup reports whether the viewer belongs to any of the groups.
func (v Viewer) InGroup(groups ...string) bool {
	for _, g := range groups {
		for _, have := range v.Groups {
			if g == have {
				return true
			}
		}
	}
	return false
}

// WithViewer attaches a viewer to the context.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFrom returns the viewer attached to the context, if any.
func ViewerFrom(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(Viewer)
	return v, ok
}
