package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSaveUploadDistinctPathsForSameFilename(t *testing.T) {
	const workers = 8

	var wg sync.WaitGroup
	paths := make([]string, workers)
	cleanups := make([]func(), workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf("contents of upload %d", i)
			paths[i], cleanups[i], errs[i] = saveUpload(strings.NewReader(body), "agreement.pdf")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("saveUpload %d: %v", i, errs[i])
		}
		t.Cleanup(cleanups[i])
		if seen[paths[i]] {
			t.Fatalf("path %q handed to two concurrent uploads", paths[i])
		}
		seen[paths[i]] = true

		// Each caller must read back exactly its own bytes.
		got, err := os.ReadFile(paths[i])
		if err != nil {
			t.Fatalf("reading %s: %v", paths[i], err)
		}
		want := fmt.Sprintf("contents of upload %d", i)
		if string(got) != want {
			t.Errorf("upload %d content = %q, want %q", i, got, want)
		}
	}
}

func TestSaveUploadKeepsExtensionAndStripsPath(t *testing.T) {
	path, cleanup, err := saveUpload(strings.NewReader("x"), "../../etc/lease.pdf")
	if err != nil {
		t.Fatalf("saveUpload: %v", err)
	}
	defer cleanup()

	if filepath.Base(path) != "lease.pdf" {
		t.Errorf("base = %q, want %q", filepath.Base(path), "lease.pdf")
	}
	if filepath.Ext(path) != ".pdf" {
		t.Errorf("ext = %q, want .pdf", filepath.Ext(path))
	}
}

func TestSaveUploadCleanupRemovesFile(t *testing.T) {
	path, cleanup, err := saveUpload(strings.NewReader("x"), "a.txt")
	if err != nil {
		t.Fatalf("saveUpload: %v", err)
	}
	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present after cleanup: %v", err)
	}
}
