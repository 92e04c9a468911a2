package version

import (
	"fmt"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/glorpus-work/featurectl/pkg/errors"
)

// Version is a strict major.minor.micro[.qualifier] version.
// The zero value is not valid; use Empty.
type Version struct {
	core      *goversion.Version
	qualifier string
}

// Empty is the lowest version, 0.0.0. Features without a version carry it.
var Empty = New(0, 0, 0, "")

// Parse parses a strict version. Missing minor and micro segments default to 0.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty, nil
	}
	parts := strings.SplitN(s, ".", 4)
	nums := [3]int{}
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 || parts[i] == "" || strings.ContainsAny(parts[i], "+-") {
			return Version{}, fmt.Errorf("%q: %w", s, errors.ErrInvalidVersion)
		}
		nums[i] = n
	}
	qualifier := ""
	if len(parts) == 4 {
		qualifier = parts[3]
		if qualifier == "" {
			return Version{}, fmt.Errorf("%q: empty qualifier: %w", s, errors.ErrInvalidVersion)
		}
		for _, c := range qualifier {
			if !validQualifierRune(c) {
				return Version{}, fmt.Errorf("%q: invalid qualifier: %w", s, errors.ErrInvalidVersion)
			}
		}
	}
	return newVersion(nums[0], nums[1], nums[2], qualifier)
}

// ParseLoose cleans s up before parsing it.
func ParseLoose(s string) (Version, error) {
	return Parse(Cleanup(s))
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// New builds a version from its parts.
func New(major, minor, micro int, qualifier string) Version {
	v, err := newVersion(major, minor, micro, qualifier)
	if err != nil {
		panic(err)
	}
	return v
}

func newVersion(major, minor, micro int, qualifier string) (Version, error) {
	core, err := goversion.NewVersion(fmt.Sprintf("%d.%d.%d", major, minor, micro))
	if err != nil {
		return Version{}, fmt.Errorf("%d.%d.%d: %w", major, minor, micro, errors.ErrInvalidVersion)
	}
	return Version{core: core, qualifier: qualifier}, nil
}

func (v Version) segment(i int) int {
	if v.core == nil {
		return 0
	}
	return v.core.Segments()[i]
}

// Major returns the major segment.
func (v Version) Major() int { return v.segment(0) }

// Minor returns the minor segment.
func (v Version) Minor() int { return v.segment(1) }

// Micro returns the micro segment.
func (v Version) Micro() int { return v.segment(2) }

// Qualifier returns the free-text qualifier, possibly empty.
func (v Version) Qualifier() string { return v.qualifier }

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	a, b := v.core, o.core
	if a == nil {
		a = Empty.core
	}
	if b == nil {
		b = Empty.core
	}
	if c := a.Compare(b); c != 0 {
		return c
	}
	return strings.Compare(v.qualifier, o.qualifier)
}

// Equal reports whether both versions are the same.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// String renders the version in strict form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Micro())
	if v.qualifier != "" {
		s += "." + v.qualifier
	}
	return s
}
