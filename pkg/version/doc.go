// Package version implements the loose version handling used for features and
// modules: fuzzy normalisation of hand-written version strings, a strict
// four-part version (major.minor.micro.qualifier) and inclusive/exclusive
// version ranges.
//
// Numeric segments are validated and compared through hashicorp/go-version;
// qualifiers compare lexically, so 1.0.0 < 1.0.0.beta.
package version
