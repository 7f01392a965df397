package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunIndexerRejectsDebugOutOfRange(t *testing.T) {
	err := RunIndexer(context.Background(), nil, Options{Debug: 10})
	if err == nil {
		t.Fatal("expected an error for debug verbosity 10")
	}
}

func TestRunIndexerRejectsWriteWithStdin(t *testing.T) {
	err := RunIndexer(context.Background(), []string{"-"}, Options{Write: true})
	if err == nil {
		t.Fatal("expected an error combining -w with stdin input")
	}
}

func TestRunIndexerReturnsErrorWhenAllInputsFail(t *testing.T) {
	err := RunIndexer(context.Background(), []string{"/nonexistent/path/for/lpi/test"}, Options{})
	if err == nil {
		t.Fatal("expected an error when the only input cannot be opened")
	}
}

func TestRunIndexerEndToEnd(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "log.txt")
	content := "connection from 10.0.0.1\nconnection from 10.0.0.2\n"
	if err := os.WriteFile(inPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RunIndexer(context.Background(), []string{inPath}, Options{Write: true, Serial: true}); err != nil {
		t.Fatalf("RunIndexer: %v", err)
	}

	out, err := os.ReadFile(inPath + ".lpi")
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(out), "10.0.0.1") || !strings.Contains(string(out), "10.0.0.2") {
		t.Fatalf("output missing expected addresses:\n%s", out)
	}
}

func TestOpenInputStdin(t *testing.T) {
	r, closeFn, forceSerial, _, err := openInput("-")
	if err != nil {
		t.Fatalf("openInput(-): %v", err)
	}
	defer closeFn()
	if !forceSerial {
		t.Error("stdin input should force serial mode")
	}
	if r != os.Stdin {
		t.Error("expected openInput(\"-\") to return os.Stdin")
	}
}

func TestOpenInputRejectsInvalidGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt.gz")
	// A truncated/invalid gzip header is enough to exercise the
	// gzip.NewReader error path without needing a real compressor.
	if err := os.WriteFile(path, []byte("not a gzip file"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, _, _, err := openInput(path)
	if err == nil {
		t.Fatal("expected an error opening an invalid gzip stream")
	}
}

func TestOpenInputMissingFile(t *testing.T) {
	_, _, _, _, err := openInput("/nonexistent/path/for/lpi/test")
	if err == nil {
		t.Fatal("expected an error for a missing input file")
	}
}

func TestOpenOutputStdout(t *testing.T) {
	w, closeFn, err := openOutput("irrelevant", false)
	if err != nil {
		t.Fatalf("openOutput: %v", err)
	}
	defer closeFn()
	if w != os.Stdout {
		t.Error("expected openOutput with write=false to return os.Stdout")
	}
}

func TestOpenOutputCreatesSuffixedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	w, closeFn, err := openOutput(path, true)
	if err != nil {
		t.Fatalf("openOutput: %v", err)
	}
	defer closeFn()
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	closeFn()

	if _, err := os.Stat(path + ".lpi"); err != nil {
		t.Fatalf("expected %s.lpi to exist: %v", path, err)
	}
}
