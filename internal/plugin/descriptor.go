package plugin

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/cutlet/internal/plugin/api"
)

// Descriptor describes an extension before it is instantiated.
type Descriptor struct {
	// Identity
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Website     string   `yaml:"website,omitempty"`
	Authors     []string `yaml:"authors,omitempty"`

	// Entry point, a Lua module name or a builtin factory name
	Main string `yaml:"main"`

	// Requirements
	Depend     []string `yaml:"depend,omitempty"`
	SoftDepend []string `yaml:"softdepend,omitempty"`

	// Modules a bot needs loaded
	Modules []string `yaml:"modules,omitempty"`

	// Archive is the origin path
	Archive string `yaml:"-"`
}

// rawDescriptor accepts a single author as well.
type rawDescriptor struct {
	Descriptor `yaml:",inline"`
	Author     string `yaml:"author"`
}

// namePattern validates extension names.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// DescriptorFile returns the descriptor file name for kind.
func DescriptorFile(kind api.Kind) string {
	return string(kind) + ".yml"
}

// ParseDescriptor parses and validates descriptor YAML.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var raw rawDescriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	d := raw.Descriptor
	if raw.Author != "" {
		d.Authors = append([]string{raw.Author}, d.Authors...)
	}
	d.normalize()

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// normalize trims fields and deduplicates lists. A name listed as both a
// hard and a soft dependency is a hard dependency.
func (d *Descriptor) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Main = strings.TrimSpace(d.Main)
	d.Authors = dedupe(d.Authors, nil)
	d.Depend = dedupe(d.Depend, nil)

	hard := make(map[string]bool, len(d.Depend))
	for _, dep := range d.Depend {
		hard[dep] = true
	}
	d.SoftDepend = dedupe(d.SoftDepend, hard)
	d.Modules = dedupe(d.Modules, nil)
}

func dedupe(in []string, skip map[string]bool) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || skip[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Validate reports every problem with the descriptor.
func (d *Descriptor) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidDescriptor))
	} else if !namePattern.MatchString(d.Name) {
		errs = append(errs, fmt.Errorf("%w: name %q must match %s", ErrInvalidDescriptor, d.Name, namePattern))
	}
	if d.Main == "" {
		errs = append(errs, fmt.Errorf("%w: main is required", ErrInvalidDescriptor))
	}
	for _, dep := range d.Dependencies() {
		if dep == d.Name {
			errs = append(errs, fmt.Errorf("%w: %s depends on itself", ErrInvalidDescriptor, d.Name))
		}
	}
	return errors.Join(errs...)
}

// Dependencies returns hard then soft dependencies.
func (d *Descriptor) Dependencies() []string {
	deps := make([]string, 0, len(d.Depend)+len(d.SoftDepend))
	deps = append(deps, d.Depend...)
	return append(deps, d.SoftDepend...)
}

// IsHard reports whether name is a hard dependency.
func (d *Descriptor) IsHard(name string) bool {
	for _, dep := range d.Depend {
		if dep == name {
			return true
		}
	}
	return false
}

// String returns a string representation of the descriptor.
func (d *Descriptor) String() string {
	if d.Version == "" {
		return d.Name
	}
	return fmt.Sprintf("%s v%s", d.Name, d.Version)
}

// Clone creates a deep copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	clone := *d
	clone.Authors = append([]string(nil), d.Authors...)
	clone.Depend = append([]string(nil), d.Depend...)
	clone.SoftDepend = append([]string(nil), d.SoftDepend...)
	clone.Modules = append([]string(nil), d.Modules...)
	return &clone
}
