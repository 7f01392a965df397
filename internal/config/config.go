// Package config loads an optional YAML tuning-override file: sensible
// built-in defaults, overridden field-by-field by whatever the file
// actually sets.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rdilley/lpi/internal/dict"
	"github.com/rdilley/lpi/internal/linechunk"
	"github.com/rdilley/lpi/internal/locarray"
)

// Tuning holds every knob otherwise baked in as an internal constant
// but which operators reasonably want to override for a given
// deployment's traffic shape, without recompiling.
type Tuning struct {
	ChunkSizeBytes         int    `yaml:"chunkSizeBytes"`
	MinFileSizeForParallel int64  `yaml:"minFileSizeForParallel"`
	Workers                int    `yaml:"workers"`
	InitialArrayCapacity   int    `yaml:"initialArrayCapacity"`
	MaxArrayCapacity       int    `yaml:"maxArrayCapacity"`
	MaxDictionaryEntries   uint64 `yaml:"maxDictionaryEntries"`
	ProgressIntervalSecs   int    `yaml:"progressIntervalSeconds"`
}

// Default returns the built-in tuning, matching the constants documented
// across internal/linechunk, internal/locarray, and internal/dict.
func Default() Tuning {
	return Tuning{
		ChunkSizeBytes:         linechunk.DefaultChunkSize,
		MinFileSizeForParallel: linechunk.MinFileSizeForParallel,
		Workers:                0, // 0 selects linechunk.WorkerCount() at runtime
		InitialArrayCapacity:   64,
		MaxArrayCapacity:       locarray.DefaultMaxCapacity,
		MaxDictionaryEntries:   0, // 0 selects dict's own default
		ProgressIntervalSecs:   60,
	}
}

// Load reads path as YAML and applies it over Default(). An empty path
// is not an error: it simply returns the defaults, so the --config flag
// is optional.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, errors.Wrapf(err, "config: parsing %s", path)
	}
	return t, nil
}

// DictOptions derives dict.Options from the resolved tuning and worker
// count actually chosen for this run.
func (t Tuning) DictOptions(workers int) dict.Options {
	return dict.Options{
		MaxThreads:           workers,
		InitialArrayCapacity: t.InitialArrayCapacity,
		MaxArrayCapacity:     t.MaxArrayCapacity,
		MaxEntries:           t.MaxDictionaryEntries,
	}
}
