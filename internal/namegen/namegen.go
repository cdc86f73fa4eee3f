// Package namegen produces memorable branch names for yanked commits, in the
// style of "proud-panther": lowercase words joined by hyphens, optionally
// alliterative. It performs no I/O.
package namegen

import (
	"math/rand/v2"
	"strings"
)

// Word pairs grouped by initial so alliterative picks always have a noun to
// match each adjective.
var wordsByInitial = map[byte]struct {
	adjectives []string
	nouns      []string
}{
	'b': {[]string{"brave", "bright", "bold"}, []string{"badger", "beacon", "bramble"}},
	'c': {[]string{"calm", "clever", "crisp"}, []string{"canyon", "comet", "cricket"}},
	'd': {[]string{"daring", "deft", "dusty"}, []string{"dahlia", "dolphin", "drum"}},
	'f': {[]string{"fancy", "fleet", "frosty"}, []string{"falcon", "fern", "fjord"}},
	'g': {[]string{"gentle", "gilded", "grand"}, []string{"gale", "glacier", "grove"}},
	'h': {[]string{"hardy", "hazel", "humble"}, []string{"harbor", "heron", "hollow"}},
	'l': {[]string{"lively", "lucid", "lunar"}, []string{"lagoon", "lantern", "lynx"}},
	'm': {[]string{"mellow", "merry", "mighty"}, []string{"maple", "meadow", "mole"}},
	'p': {[]string{"plucky", "polished", "proud"}, []string{"panther", "pebble", "prairie"}},
	'r': {[]string{"rapid", "rustic", "regal"}, []string{"raven", "reef", "river"}},
	's': {[]string{"silent", "sly", "sturdy"}, []string{"sparrow", "spruce", "summit"}},
	't': {[]string{"tidy", "tranquil", "trusty"}, []string{"tempest", "thicket", "tundra"}},
	'w': {[]string{"wild", "wise", "witty"}, []string{"walnut", "willow", "wren"}},
}

var initials = []byte("bcdfghlmprstw")

// Generate returns a hyphen-joined name of wordCount words drawn from r. In
// alliterative mode every word shares the same first letter. Word counts
// below two are rounded up to two (an adjective and a noun).
func Generate(r *rand.Rand, wordCount int, alliterative bool) string {
	if wordCount < 2 {
		wordCount = 2
	}

	letter := initials[r.IntN(len(initials))]

	words := make([]string, 0, wordCount)
	for i := 0; i < wordCount; i++ {
		initial := letter
		if !alliterative {
			initial = initials[r.IntN(len(initials))]
		}
		pool := wordsByInitial[initial].adjectives
		if i == wordCount-1 {
			pool = wordsByInitial[initial].nouns
		}
		words = append(words, pool[r.IntN(len(pool))])
	}
	return strings.Join(words, "-")
}

// Random returns a two-word alliterative name from the shared random source.
func Random() string {
	return Generate(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), 2, true)
}
