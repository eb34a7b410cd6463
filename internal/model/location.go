package model

// LocationType classifies a location candidate before geocoding
type LocationType string

const (
	LocationTypeAddress      LocationType = "ADDRESS"      // Street or administrative address
	LocationTypeLandmark     LocationType = "LANDMARK"     // Named place (station, park, building)
	LocationTypeUnresolvable LocationType = "UNRESOLVABLE" // Vague or foreign place, never geocoded
)

// Valid reports whether t is one of the known location types
func (t LocationType) Valid() bool {
	switch t {
	case LocationTypeAddress, LocationTypeLandmark, LocationTypeUnresolvable:
		return true
	default:
		return false
	}
}

// ExtractedLocation is a location candidate produced by the extraction prompt
type ExtractedLocation struct {
	Name string       `json:"name"`
	Type LocationType `json:"type"`
}

// RegionType tells which region code system an address code belongs to
type RegionType string

const (
	RegionTypeUnknown        RegionType = "UNKNOWN"
	RegionTypeLegal          RegionType = "LEGAL"          // Legal district code (B code)
	RegionTypeAdministrative RegionType = "ADMINISTRATIVE" // Administrative district code (H code)
)

// UnknownRegionCode is the code carried by unresolved locations
const UnknownRegionCode = "UNKNOWN"

// Coordinate is a WGS84 point
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Address is the administrative description of a location
type Address struct {
	RegionType  RegionType `json:"regionType"`
	Code        string     `json:"code"`
	AddressName string     `json:"addressName"`
	Depth1Name  string     `json:"depth1Name,omitempty"`
	Depth2Name  string     `json:"depth2Name,omitempty"`
	Depth3Name  string     `json:"depth3Name,omitempty"`
}

// Location is a geocoded (or explicitly unresolved) place mentioned by an article.
// Unresolved locations always have a nil Coordinate.
type Location struct {
	Coordinate *Coordinate `json:"coordinate"`
	Address    Address     `json:"address"`
}

// UnresolvedLocation returns the fallback location for a name that could not be geocoded
func UnresolvedLocation(name string) Location {
	return Location{
		Coordinate: nil,
		Address: Address{
			RegionType:  RegionTypeUnknown,
			Code:        UnknownRegionCode,
			AddressName: name,
		},
	}
}

// Resolved reports whether the location carries a geocoded position
func (l Location) Resolved() bool {
	return l.Coordinate != nil && l.Address.RegionType != RegionTypeUnknown
}
