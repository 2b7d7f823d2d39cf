package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind selects which control plane owns a service.
type Kind string

const (
	// KindUnit is a service whose lifecycle belongs to the unit-control tool.
	KindUnit Kind = "unit"
	// KindProcess is a raw OS process known only by the port it listens on.
	KindProcess Kind = "process"
)

var (
	ErrDuplicateName = errors.New("duplicate service name")
	ErrInvalid       = errors.New("invalid service descriptor")
)

// LaunchSpec is the working directory and shell command used to (re)start a raw process.
type LaunchSpec struct {
	WorkDir string   `json:"work_dir"`
	Command string   `json:"command"`
	Env     []string `json:"env,omitempty"` // "K=V" pairs layered over the shared environment
}

// Descriptor describes one monitored service. It is immutable once the
// registry is built.
type Descriptor struct {
	Name        string      `json:"name"`
	Kind        Kind        `json:"kind"`
	Unit        string      `json:"unit,omitempty"`
	Launch      *LaunchSpec `json:"launch,omitempty"`
	Port        int         `json:"port,omitempty"`
	Description string      `json:"description"`
	LogFile     string      `json:"-"`
}

// Validate checks that exactly one of Unit/Launch is populated and that it
// matches Kind.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("%w: %s: port %d out of range", ErrInvalid, d.Name, d.Port)
	}
	switch d.Kind {
	case KindUnit:
		if d.Unit == "" {
			return fmt.Errorf("%w: %s: unit required for kind %q", ErrInvalid, d.Name, d.Kind)
		}
		if d.Launch != nil {
			return fmt.Errorf("%w: %s: launch spec not allowed for kind %q", ErrInvalid, d.Name, d.Kind)
		}
	case KindProcess:
		if d.Unit != "" {
			return fmt.Errorf("%w: %s: unit not allowed for kind %q", ErrInvalid, d.Name, d.Kind)
		}
		if d.Launch == nil || strings.TrimSpace(d.Launch.Command) == "" {
			return fmt.Errorf("%w: %s: command required for kind %q", ErrInvalid, d.Name, d.Kind)
		}
		if d.Port == 0 {
			return fmt.Errorf("%w: %s: port required for kind %q", ErrInvalid, d.Name, d.Kind)
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalid, d.Name, d.Kind)
	}
	return nil
}

// Registry is the ordered, read-only set of descriptors. Safe for concurrent use.
type Registry struct {
	list  []Descriptor
	index map[string]int
}

// New validates ds and builds a registry preserving their order.
func New(ds []Descriptor) (*Registry, error) {
	r := &Registry{
		list:  make([]Descriptor, 0, len(ds)),
		index: make(map[string]int, len(ds)),
	}
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
		}
		if d.Launch != nil {
			l := *d.Launch
			l.WorkDir = ExpandHome(l.WorkDir)
			d.Launch = &l
		}
		r.index[d.Name] = len(r.list)
		r.list = append(r.list, d)
	}
	return r, nil
}

// All returns the descriptors in registry order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) Lookup(name string) (Descriptor, bool) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.list[i], true
}

func (r *Registry) Len() int { return len(r.list) }

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}
