package contact

import "strconv"

// zipPrefixRanges maps a 3-digit ZIP code prefix to its US state code.
// This is the "static prefix table" spec.md §3/§6 calls for; it is
// deliberately coarse (ZIP ranges straddle state lines in a handful of
// places) and is only a fallback for contacts with no explicit
// jurisdiction code on file.
var zipPrefixRanges = []struct {
	lo, hi int
	state  string
}{
	{10, 27, "MA"}, {28, 29, "RI"}, {30, 38, "NH"}, {39, 49, "ME"},
	{50, 59, "VT"}, {60, 69, "CT"}, {70, 89, "NJ"},
	{100, 149, "NY"}, {150, 196, "PA"}, {197, 199, "DE"},
	{200, 205, "DC"}, {206, 219, "MD"}, {220, 246, "VA"}, {247, 268, "WV"},
	{270, 289, "NC"}, {290, 299, "SC"}, {300, 319, "GA"}, {320, 349, "FL"},
	{350, 369, "AL"}, {370, 385, "TN"}, {386, 397, "MS"},
	{398, 399, "GA"}, {400, 427, "KY"}, {430, 459, "OH"}, {460, 479, "IN"},
	{480, 499, "MI"}, {500, 528, "IA"}, {530, 549, "WI"}, {550, 567, "MN"},
	{570, 577, "SD"}, {580, 588, "ND"}, {590, 599, "MT"}, {600, 629, "IL"},
	{630, 658, "MO"}, {660, 679, "KS"}, {680, 693, "NE"}, {700, 714, "LA"},
	{716, 729, "AR"}, {730, 749, "OK"}, {750, 799, "TX"}, {800, 816, "CO"},
	{820, 831, "WY"}, {832, 838, "ID"}, {840, 847, "UT"}, {850, 865, "AZ"},
	{870, 884, "NM"}, {889, 898, "NV"}, {900, 961, "CA"}, {967, 968, "HI"},
	{970, 979, "OR"}, {980, 994, "WA"}, {995, 999, "AK"},
}

// FromPostalCode infers a US state code from the first three digits of
// a ZIP code. ok is false when postalCode is empty or malformed.
func FromPostalCode(postalCode string) (code string, ok bool) {
	prefix := postalCode
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return "", false
	}
	for _, r := range zipPrefixRanges {
		if n >= r.lo && n <= r.hi {
			return r.state, true
		}
	}
	return "", false
}
