package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/seatbelt/internal/lint"
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// File is the loaded config file, or nil.
	File *File

	// Flags is the command-line layer. It sits above the file's shared
	// section and below per-file overrides.
	Flags Config

	// Dir is the working directory. Defaults to os.Getwd.
	Dir string

	// Lookup reads the environment. Defaults to os.LookupEnv.
	Lookup LookupFunc
}

// Resolver computes the policy for each linted file. Results are cached by
// the set of overrides that apply, so files sharing overrides share a
// Policy value.
type Resolver struct {
	dir       string
	globRoot  string
	fallbacks Config
	shared    Config
	overrides []Override
	hard      Config

	mu    sync.Mutex
	cache map[string]Policy
}

// NewResolver builds the layer stack:
// defaults < env fallbacks < config file < flags < file overrides < env overrides.
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		dir = wd
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	hard, err := EnvOverrides(lookup)
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		dir:       dir,
		globRoot:  dir,
		fallbacks: absolutize(dir, EnvFallbacks(lookup)),
		hard:      absolutize(dir, hard),
		cache:     make(map[string]Policy),
	}

	flags := absolutize(dir, opts.Flags)
	if opts.File != nil {
		r.globRoot = opts.File.Dir()
		r.shared = Merge(opts.File.Config, flags)
		r.overrides = opts.File.Overrides
	} else {
		r.shared = flags
	}
	return r, nil
}

// Dir returns the working directory relative paths resolve against.
func (r *Resolver) Dir() string {
	return r.dir
}

// Shared returns the policy before any per-file override applies.
func (r *Resolver) Shared() Policy {
	return r.resolve(nil)
}

// Resolve returns the policy that applies to file.
func (r *Resolver) Resolve(file string) Policy {
	key := lint.RecordKey(r.globRoot, file)
	var matched []int
	for i, o := range r.overrides {
		for _, pattern := range o.Files {
			if MatchGlob(pattern, key) {
				matched = append(matched, i)
				break
			}
		}
	}
	return r.resolve(matched)
}

func (r *Resolver) resolve(matched []int) Policy {
	parts := make([]string, len(matched))
	for i, m := range matched {
		parts[i] = strconv.Itoa(m)
	}
	cacheKey := strings.Join(parts, ",")

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache[cacheKey]; ok {
		return p
	}

	layers := []Config{r.fallbacks, r.shared}
	for _, m := range matched {
		layers = append(layers, r.overrides[m].Config)
	}
	layers = append(layers, r.hard)

	p := Resolve(layers...)
	if !filepath.IsAbs(p.RecordFile) {
		p.RecordFile = filepath.Join(r.dir, p.RecordFile)
	}
	r.cache[cacheKey] = p
	return p
}
