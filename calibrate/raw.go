package calibrate

import "strings"

// DefaultRawViscosity is the estimate for media missing from the table, cP.
const DefaultRawViscosity = 18_000_000.0

// RawViscosities holds typical undiluted viscosities at 25 °C, cP.
var RawViscosities = map[string]float64{
	"D8":              54_346_667,
	"D9":              20_000_000,
	"Liquid Diamonds": 20_000_000,
	"Other":           2_000_000,
}

// RawViscosity returns the undiluted viscosity estimate for media. Lookup is
// exact first, then case-insensitive.
func RawViscosity(media string) float64 {
	return lookupRaw(RawViscosities, media)
}

func lookupRaw(table map[string]float64, media string) float64 {
	media = strings.TrimSpace(media)
	if v, ok := table[media]; ok {
		return v
	}
	for name, v := range table {
		if strings.EqualFold(name, media) {
			return v
		}
	}

	return DefaultRawViscosity
}
