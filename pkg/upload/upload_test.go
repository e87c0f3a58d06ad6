package upload

import (
	"os"
	"strings"
	"testing"
)

func TestIsFilenameAllowed(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"archive.zip", true},
		{"photo.JPG", true},
		{"data.csv", true},
		{"notes.txt", true},
		{"creds.session", false},
		{"tdata_backup.zip", false},
		{"Telegram Desktop export.zip", false},
		{"user_data.zip", false},
		{"dump.json", false},
		{"store.sqlite", false},
		{"market.db", false},
		{"binary.exe", false},
		{"noextension", false},
	}

	for _, tc := range cases {
		if got := IsFilenameAllowed(tc.name); got != tc.want {
			t.Errorf("IsFilenameAllowed(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()

	path, size, err := Save(strings.NewReader("hello"), dir, "report.pdf")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if size != 5 {
		t.Fatalf("expected size 5, got %d", size)
	}
	if !strings.HasSuffix(path, ".pdf") {
		t.Fatalf("stored name must keep the extension: %q", path)
	}
	if strings.Contains(path, "report") {
		t.Fatalf("stored name must be opaque: %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content mismatch: %q", data)
	}
}
