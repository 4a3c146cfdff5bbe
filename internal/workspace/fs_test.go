package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) *fsRoot {
	t.Helper()
	dir := t.TempDir()
	fs, err := newFSRoot(dir)
	if err != nil {
		t.Fatalf("newFSRoot: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	fs := tempRoot(t)
	content := []byte(`{"kind":"account"}` + "\n")
	if err := fs.write("accounts/acme/canonical.json", content); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := fs.read("accounts/acme/canonical.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestTraversalBlocked(t *testing.T) {
	fs := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := fs.read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := fs.write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	// If the process dies mid-write the rename never happens, so an
	// overwrite either fully lands or leaves the old bytes intact.
	fs := tempRoot(t)
	_ = fs.write("projects/apollo/canonical.json", []byte("original"))

	updated := []byte("updated")
	if err := fs.write("projects/apollo/canonical.json", updated); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, _ := fs.read("projects/apollo/canonical.json")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files anywhere under the root.
	var leftovers []string
	_ = filepath.WalkDir(fs.root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			if ok, _ := filepath.Match(tmpPattern, d.Name()); ok {
				leftovers = append(leftovers, path)
			}
		}
		return nil
	})
	if len(leftovers) != 0 {
		t.Errorf("leftover temp files: %v", leftovers)
	}
}

func TestRemoveDirRefusesRoot(t *testing.T) {
	fs := tempRoot(t)
	if err := fs.removeDir("."); err == nil {
		t.Error("expected error removing root")
	}
	if err := fs.removeDir(""); err == nil {
		t.Error("expected error removing empty path")
	}
}

func TestSubdirsMissingParent(t *testing.T) {
	fs := tempRoot(t)
	dirs, err := fs.subdirs("people")
	if err != nil {
		t.Fatalf("subdirs: %v", err)
	}
	if len(dirs) != 0 {
		t.Errorf("expected no dirs, got %v", dirs)
	}
}

func TestSubdirsSkipsFilesAndDotDirs(t *testing.T) {
	fs := tempRoot(t)
	_ = fs.write("accounts/acme/canonical.json", []byte("{}"))
	_ = fs.write("accounts/stray.txt", []byte("not a dir"))
	if err := os.MkdirAll(filepath.Join(fs.root, "accounts", ".hidden"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	dirs, err := fs.subdirs("accounts")
	if err != nil {
		t.Fatalf("subdirs: %v", err)
	}
	if len(dirs) != 1 || dirs[0] != "acme" {
		t.Errorf("dirs = %v, want [acme]", dirs)
	}
}

func TestNewFSRoot_NonExistentDir(t *testing.T) {
	_, err := newFSRoot("/tmp/dayos-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFSRoot_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "dayos-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := newFSRoot(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
