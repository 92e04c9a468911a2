package manifest

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/glorpus-work/featurectl/pkg/errors"
	"github.com/glorpus-work/featurectl/pkg/version"
)

// Path is the location of the manifest inside a module archive.
const Path = "META-INF/MANIFEST.MF"

// Well known headers.
const (
	HeaderManifestVersion = "Manifest-Version"
	HeaderSymbolicName    = "Bundle-SymbolicName"
	HeaderVersion         = "Bundle-Version"
	HeaderImportPackage   = "Import-Package"
	HeaderExportPackage   = "Export-Package"
	HeaderFragmentHost    = "Fragment-Host"
)

// Manifest holds the main section headers of a module manifest.
type Manifest map[string]string

// Parse reads the main section of a manifest. Continuation lines start with a
// single space; the main section ends at the first blank line.
func Parse(r io.Reader) (Manifest, error) {
	m := Manifest{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var key string
	var value strings.Builder
	flush := func() {
		if key != "" {
			m[key] = value.String()
		}
		key = ""
		value.Reset()
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") {
			if key == "" {
				return nil, fmt.Errorf("continuation line without header: %w", errors.ErrModuleFormat)
			}
			value.WriteString(line[1:])
			continue
		}
		flush()
		name, val, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("malformed manifest line %q: %w", line, errors.ErrModuleFormat)
		}
		key = strings.TrimSpace(name)
		value.WriteString(strings.TrimPrefix(val, " "))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}
	flush()
	return m, nil
}

// WriteTo writes the manifest with Manifest-Version first and the remaining
// headers sorted by name.
func (m Manifest) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	mv := m[HeaderManifestVersion]
	if mv == "" {
		mv = "1.0"
	}
	fmt.Fprintf(&b, "%s: %s\n", HeaderManifestVersion, mv)
	for _, k := range sortedKeys(m) {
		if k == HeaderManifestVersion {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, m[k])
	}
	b.WriteString("\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Identity is the symbolic name and version of a module.
type Identity struct {
	SymbolicName string
	Version      version.Version
}

func (id Identity) String() string {
	return id.SymbolicName + "/" + id.Version.String()
}

// Identity extracts the module identity. A missing symbolic name is an
// ErrModuleFormat; a missing version defaults to 0.0.0 and sloppy versions are
// normalised.
func (m Manifest) Identity() (Identity, error) {
	header := strings.TrimSpace(m[HeaderSymbolicName])
	if header == "" {
		return Identity{}, fmt.Errorf("missing %s header: %w", HeaderSymbolicName, errors.ErrModuleFormat)
	}
	clauses, err := ParseHeader(header)
	if err != nil || len(clauses) == 0 {
		return Identity{}, fmt.Errorf("invalid %s header %q: %w", HeaderSymbolicName, header, errors.ErrModuleFormat)
	}
	v, err := version.ParseLoose(m[HeaderVersion])
	if err != nil {
		return Identity{}, fmt.Errorf("invalid %s header: %w", HeaderVersion, errors.ErrModuleFormat)
	}
	return Identity{SymbolicName: clauses[0].Name, Version: v}, nil
}

// Import is a package requirement of a module.
type Import struct {
	Package  string
	Range    version.Range
	Optional bool
}

// Export is a package capability of a module.
type Export struct {
	Package string
	Version version.Version
}

// Satisfies reports whether the export matches the import.
func (e Export) Satisfies(imp Import) bool {
	return e.Package == imp.Package && imp.Range.Contains(e.Version)
}

// HostRef names the host a fragment attaches to.
type HostRef struct {
	SymbolicName string
	Range        version.Range
}

// Matches reports whether id is an acceptable host.
func (h HostRef) Matches(id Identity) bool {
	return h.SymbolicName == id.SymbolicName && h.Range.Contains(id.Version)
}

// Info is the wiring relevant metadata of a module.
type Info struct {
	Identity
	Imports      []Import
	Exports      []Export
	FragmentHost *HostRef
}

// IsFragment reports whether the module attaches to a host.
func (i *Info) IsFragment() bool {
	return i.FragmentHost != nil
}

// Info parses identity, package imports, exports and the fragment host.
func (m Manifest) Info() (*Info, error) {
	id, err := m.Identity()
	if err != nil {
		return nil, err
	}
	info := &Info{Identity: id}

	imports, err := ParseHeader(m[HeaderImportPackage])
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", HeaderImportPackage, errors.ErrModuleFormat)
	}
	for _, c := range imports {
		r, err := version.ParseRange(c.Attribute("version"))
		if err != nil {
			return nil, fmt.Errorf("invalid import of %s: %w", c.Name, errors.ErrModuleFormat)
		}
		info.Imports = append(info.Imports, Import{
			Package:  c.Name,
			Range:    r,
			Optional: c.Directive("resolution") == "optional",
		})
	}

	exports, err := ParseHeader(m[HeaderExportPackage])
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", HeaderExportPackage, errors.ErrModuleFormat)
	}
	for _, c := range exports {
		v, err := version.ParseLoose(c.Attribute("version"))
		if err != nil {
			return nil, fmt.Errorf("invalid export of %s: %w", c.Name, errors.ErrModuleFormat)
		}
		info.Exports = append(info.Exports, Export{Package: c.Name, Version: v})
	}

	if header := strings.TrimSpace(m[HeaderFragmentHost]); header != "" {
		clauses, err := ParseHeader(header)
		if err != nil || len(clauses) == 0 {
			return nil, fmt.Errorf("invalid %s header: %w", HeaderFragmentHost, errors.ErrModuleFormat)
		}
		r, err := version.ParseRange(clauses[0].Attribute("bundle-version"))
		if err != nil {
			return nil, fmt.Errorf("invalid %s version: %w", HeaderFragmentHost, errors.ErrModuleFormat)
		}
		info.FragmentHost = &HostRef{SymbolicName: clauses[0].Name, Range: r}
	}
	return info, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
