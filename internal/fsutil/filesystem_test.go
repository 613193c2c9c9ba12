package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_ReadFile(t *testing.T) {
	fs := OSFileSystem{}

	data, err := fs.ReadFile("filesystem.go")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if len(data) == 0 {
		t.Error("expected non-empty file content")
	}
}

func TestOSFileSystem_WriteAndStat(t *testing.T) {
	fs := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "out.json")

	if err := fs.WriteFile(path, []byte(`{"ok":true}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(len(`{"ok":true}`)) {
		t.Errorf("size = %d, want %d", info.Size(), len(`{"ok":true}`))
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	err := mfs.WriteFile("/test.txt", testData, 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}
}

func TestMemoryFileSystem_ReadIsACopy(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/samples.csv", []byte("x,y,z"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/samples.csv")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	data[0] = '!'

	again, err := mfs.ReadFile("/samples.csv")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(again) != "x,y,z" {
		t.Errorf("stored data mutated through a read copy: %q", again)
	}
}

func TestMemoryFileSystem_MissingFile(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.ReadFile("/missing.json"); err == nil {
		t.Error("expected error reading missing file")
	}
	if _, err := mfs.Stat("/missing.json"); err == nil {
		t.Error("expected error statting missing file")
	}
	if mfs.Exists("/missing.json") {
		t.Error("expected missing file to not exist")
	}
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/dir/result.json", []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	info, err := mfs.Stat("/dir/result.json")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "result.json" {
		t.Errorf("name = %q, want result.json", info.Name())
	}
	if info.Size() != 2 {
		t.Errorf("size = %d, want 2", info.Size())
	}
	if info.Mode() != os.FileMode(0600) {
		t.Errorf("mode = %v, want 0600", info.Mode())
	}
	if info.IsDir() {
		t.Error("expected a regular file")
	}
}
