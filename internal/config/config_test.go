package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	tuning, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if tuning != Default() {
		t.Fatalf("Load(\"\") = %+v, want Default() = %+v", tuning, Default())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lpi.yaml")
	yaml := "workers: 4\nmaxDictionaryEntries: 1000\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	tuning, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	if tuning.Workers != 4 {
		t.Errorf("Workers = %d, want 4", tuning.Workers)
	}
	if tuning.MaxDictionaryEntries != 1000 {
		t.Errorf("MaxDictionaryEntries = %d, want 1000", tuning.MaxDictionaryEntries)
	}
	// Unset fields retain their defaults.
	if tuning.ChunkSizeBytes != Default().ChunkSizeBytes {
		t.Errorf("ChunkSizeBytes = %d, want default %d", tuning.ChunkSizeBytes, Default().ChunkSizeBytes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/lpi.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDictOptionsWiresWorkerCount(t *testing.T) {
	opts := Default().DictOptions(6)
	if opts.MaxThreads != 6 {
		t.Fatalf("MaxThreads = %d, want 6", opts.MaxThreads)
	}
}
