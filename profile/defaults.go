package profile

// Named default profiles.
const (
	Generic = "Generic"
	Indica  = "Indica"
	Sativa  = "Sativa"
)

// DefaultLibrary returns the built-in blends in percent of terpene mass.
func DefaultLibrary() map[string]Profile {
	return map[string]Profile{
		"Tiger's Blood": {
			Compounds: map[string]float64{
				"alpha-Pinene":   4.2,
				"beta-Pinene":    5.6,
				"Caryophyllene":  1.4,
				"alpha-Humulene": 11.8,
			},
			Other: 77.0,
		},
		"Guava Gelato": {
			Compounds: map[string]float64{
				"beta-Myrcene":    18.6,
				"D-Limonene":      12.3,
				"Ocimene 1":       13.1,
				"Linalool":        4.1,
				"Nerolidol 1":     2.8,
				"alpha-Bisabolol": 8.2,
			},
			Other: 40.9,
		},
		"Grape Ape": {
			Compounds: map[string]float64{
				"alpha-Pinene": 17.2,
				"beta-Pinene":  7.5,
				"beta-Myrcene": 31.1,
				"D-Limonene":   6.1,
				"Ocimene 1":    2.2,
				"Linalool":     4.2,
			},
			Other: 31.7,
		},
		Generic: {
			Compounds: map[string]float64{
				"beta-Myrcene":   30.0,
				"D-Limonene":     20.0,
				"Caryophyllene":  15.0,
				"alpha-Pinene":   10.0,
				"beta-Pinene":    7.0,
				"Linalool":       6.0,
				"alpha-Humulene": 5.0,
				"Terpinolene":    4.0,
				"Ocimene 1":      3.0,
			},
		},
		Indica: {
			Compounds: map[string]float64{
				"beta-Myrcene":    40.0,
				"Caryophyllene":   15.0,
				"Linalool":        12.0,
				"D-Limonene":      10.0,
				"alpha-Humulene":  8.0,
				"alpha-Pinene":    6.0,
				"alpha-Bisabolol": 5.0,
				"Nerolidol 1":     4.0,
			},
		},
		Sativa: {
			Compounds: map[string]float64{
				"Terpinolene":   25.0,
				"D-Limonene":    20.0,
				"alpha-Pinene":  15.0,
				"beta-Myrcene":  12.0,
				"Ocimene 1":     10.0,
				"beta-Pinene":   8.0,
				"Caryophyllene": 6.0,
				"Linalool":      4.0,
			},
		},
	}
}
