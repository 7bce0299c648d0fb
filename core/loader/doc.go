// Package loader provides the feature loading system of the mirror API.
//
// Each feature implements the Feature interface, which defines whether it is
// enabled and how it registers its routes.
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager holds the registry. Register adds features in order and
// LoadAll loads the enabled ones, failing on the first error.
package loader
