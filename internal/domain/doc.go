// Package domain models map pins and the reverse-geocoding vocabulary shared
// by the resolver, the provider adapters, and the HTTP surface.
//
// # Coordinates
//
// A [Coordinate] is a WGS-84 latitude/longitude pair. Values are validated
// once at the edge ([ValidateCoordinate], [ParseCoordinate]); everything past
// that point can assume finite, in-range numbers.
//
// Cache keys are produced by rounding both components to four decimal places
// (about 11 m at the equator), so repeated clicks in the same neighbourhood
// collapse to a single lookup:
//
//	(48.85661, 2.35221) → "48.8566,2.3522"
//	(48.85664, 2.35223) → "48.8566,2.3522"
//
// # Place names
//
// Geocoding providers disagree on casing, Unicode composition and decoration.
// Several return administrative qualifiers in parentheses, e.g.
// "Paris (75)" or "Bruxelles (Brussel)". [NormalizeName] strips those groups
// and replaces anything empty with the [Unknown] sentinel. It is applied
// exactly once, between a provider response and the resolution cache.
//
// # Pins
//
// A [Pin] is a user-dropped marker ("sticker") with free-text notes, an
// author, and an optional photo. Pins are persisted by a [PinStore]; photos by
// an [ImageStore].
package domain
