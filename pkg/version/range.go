package version

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/featurectl/pkg/errors"
)

// Range is a version interval. A nil Ceiling means unbounded.
type Range struct {
	Floor            Version
	FloorInclusive   bool
	Ceiling          *Version
	CeilingInclusive bool
}

// Any matches every version.
var Any = Range{Floor: Empty, FloorInclusive: true}

// AtLeast returns the range [v, +inf).
func AtLeast(v Version) Range {
	return Range{Floor: v, FloorInclusive: true}
}

// Exactly returns the range [v, v].
func Exactly(v Version) Range {
	c := v
	return Range{Floor: v, FloorInclusive: true, Ceiling: &c, CeilingInclusive: true}
}

// NewRange builds a bounded range.
func NewRange(floorInclusive bool, floor, ceiling Version, ceilingInclusive bool) Range {
	c := ceiling
	return Range{Floor: floor, FloorInclusive: floorInclusive, Ceiling: &c, CeilingInclusive: ceilingInclusive}
}

// ParseRange parses "[1.0,2.0)", "(1.0,2.0]" and friends. A bare version v is
// read as [v, +inf) and an empty string as Any. Versions inside the range are
// cleaned up first, so "[1.2-SNAPSHOT,2)" is accepted.
func ParseRange(s string) (Range, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, `"`, "")
	if s == "" {
		return Any, nil
	}
	first, last := s[0], s[len(s)-1]
	if first != '[' && first != '(' {
		v, err := ParseLoose(s)
		if err != nil {
			return Range{}, err
		}
		return AtLeast(v), nil
	}
	if last != ']' && last != ')' {
		return Range{}, fmt.Errorf("%q: unterminated range: %w", s, errors.ErrInvalidVersion)
	}
	bounds := strings.Split(s[1:len(s)-1], ",")
	if len(bounds) != 2 {
		return Range{}, fmt.Errorf("%q: range needs two bounds: %w", s, errors.ErrInvalidVersion)
	}
	floor, err := ParseLoose(bounds[0])
	if err != nil {
		return Range{}, err
	}
	ceiling, err := ParseLoose(bounds[1])
	if err != nil {
		return Range{}, err
	}
	return NewRange(first == '[', floor, ceiling, last == ']'), nil
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v Version) bool {
	c := v.Compare(r.Floor)
	if c < 0 || (c == 0 && !r.FloorInclusive) {
		return false
	}
	if r.Ceiling == nil {
		return true
	}
	c = v.Compare(*r.Ceiling)
	return c < 0 || (c == 0 && r.CeilingInclusive)
}

// String renders the range in interval notation.
func (r Range) String() string {
	if r.Ceiling == nil {
		return r.Floor.String()
	}
	open, closing := "(", ")"
	if r.FloorInclusive {
		open = "["
	}
	if r.CeilingInclusive {
		closing = "]"
	}
	return open + r.Floor.String() + "," + r.Ceiling.String() + closing
}

// Highest returns the candidate with the highest version inside r. Candidates
// that do not parse are ignored.
func Highest(candidates []string, r Range) (string, bool) {
	best, found := "", false
	var bestVersion Version
	for _, c := range candidates {
		v, err := ParseLoose(c)
		if err != nil || !r.Contains(v) {
			continue
		}
		if !found || bestVersion.Less(v) {
			best, bestVersion, found = c, v, true
		}
	}
	return best, found
}
