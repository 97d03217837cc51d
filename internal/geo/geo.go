// Package geo matches records to an origin by great-circle distance.
//
// Matching is two explicit steps: a cheap bounding box used to narrow
// candidates in the data store, then an exact haversine check here.
package geo

import (
	"math"
	"sort"

	"ecocycle/internal/domain"
)

const (
	EarthRadiusKm = 6371.0
	// KmPerDegreeLat is the length of one degree of latitude.
	KmPerDegreeLat = 111.045
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return domain.Errf(domain.KindInvalidCoordinate, "latitude %v outside [-90,90]", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return domain.Errf(domain.KindInvalidCoordinate, "longitude %v outside [-180,180]", p.Lng)
	}
	return nil
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// DistanceKm returns the haversine distance between a and b.
func DistanceKm(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return haversine(a, b), nil
}

func haversine(a, b Point) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Box is an inclusive lat/lng rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BoundingBox returns the pre-filter rectangle around origin. Longitude span
// is widened by 1/cos(lat); near the poles or across the antimeridian it
// degrades to the full longitude range.
func BoundingBox(origin Point, radiusKm float64) (Box, error) {
	if err := origin.Validate(); err != nil {
		return Box{}, err
	}
	dLat := radiusKm / KmPerDegreeLat
	b := Box{
		MinLat: math.Max(-90, origin.Lat-dLat),
		MaxLat: math.Min(90, origin.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	cos := math.Cos(rad(origin.Lat))
	if cos < 1e-6 {
		return b, nil
	}
	dLng := radiusKm / (KmPerDegreeLat * cos)
	if origin.Lng-dLng >= -180 && origin.Lng+dLng <= 180 {
		b.MinLng = origin.Lng - dLng
		b.MaxLng = origin.Lng + dLng
	}
	return b, nil
}

// Locatable is anything with a position.
type Locatable interface {
	Position() Point
}

type Match[T Locatable] struct {
	Item       T
	DistanceKm float64
}

// FindWithinRadius keeps candidates strictly closer than radiusKm, nearest first.
// Candidates with invalid coordinates are skipped.
func FindWithinRadius[T Locatable](origin Point, radiusKm float64, candidates []T) ([]Match[T], error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	out := make([]Match[T], 0, len(candidates))
	for _, c := range candidates {
		p := c.Position()
		if p.Validate() != nil {
			continue
		}
		if d := haversine(origin, p); d < radiusKm {
			out = append(out, Match[T]{Item: c, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}
