// Package arena tracks arena groups, their lock state, and match bindings.
package arena

// Variant identifies one physical arena flavor within a group. A group named
// "aqua" may have a Primary arena "haqua", an Alternate arena "aqua", and a
// Practice arena "paqua"; the prefixes are an inventory naming convention.
type Variant int

const (
	Primary Variant = iota
	Alternate
	Practice
)

func (v Variant) String() string {
	switch v {
	case Primary:
		return "primary"
	case Alternate:
		return "alternate"
	case Practice:
		return "practice"
	default:
		return "unknown"
	}
}

// rankedPreference and unrankedPreference order variant selection when a
// group is locked. Ranked matches prefer the primary arena; unranked matches
// prefer the alternate so primaries stay free for queue play.
var (
	rankedPreference   = []Variant{Primary, Alternate, Practice}
	unrankedPreference = []Variant{Alternate, Primary, Practice}
)

// preference returns the variant selection order for the match kind.
func preference(ranked bool) []Variant {
	if ranked {
		return rankedPreference
	}
	return unrankedPreference
}
