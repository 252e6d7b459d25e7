package safefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func symlinkFixture(t *testing.T) (target, link string) {
	t.Helper()
	dir := t.TempDir()
	target = filepath.Join(dir, "target.yaml")
	link = filepath.Join(dir, "link.yaml")
	if err := os.WriteFile(target, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	return target, link
}

func TestRejectSymlink(t *testing.T) {
	target, link := symlinkFixture(t)
	if err := RejectSymlink(target); err != nil {
		t.Errorf("regular file should pass: %v", err)
	}
	if err := RejectSymlink(link); !errors.Is(err, ErrSymlink) {
		t.Errorf("err = %v, want ErrSymlink", err)
	}
	if err := RejectSymlink("/nonexistent/path/abc123"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}

func TestReadFile(t *testing.T) {
	target, link := symlinkFixture(t)
	got, err := ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "secret" {
		t.Errorf("got %q", got)
	}
	if _, err := ReadFile(link); !errors.Is(err, ErrSymlink) {
		t.Errorf("err = %v, want ErrSymlink", err)
	}
}

func TestReadFileMax_Limit(t *testing.T) {
	f := filepath.Join(t.TempDir(), "controls.json")
	if err := os.WriteFile(f, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFileMax(f, 1024); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
	got, err := ReadFileMax(f, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2048 {
		t.Errorf("len = %d", len(got))
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controldesk.yaml")

	if err := WriteFileAtomic(path, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("got %q, want v2", got)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestWriteFileAtomic_RejectsSymlink(t *testing.T) {
	target, link := symlinkFixture(t)
	if err := WriteFileAtomic(link, []byte("overwrite"), 0o644); !errors.Is(err, ErrSymlink) {
		t.Fatalf("err = %v, want ErrSymlink", err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "secret" {
		t.Error("symlink target was modified")
	}
}
