// Package upload vets and stores seller-submitted files.
//
// The filename policy is a strict allow-list: anything that looks like an
// account, session or credential dump is refused before it ever reaches
// the inventory store.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"market-escrow-api/pkg/uid"
)

var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`tdata`),
	regexp.MustCompile(`\.session\b`),
	regexp.MustCompile(`\btelegram[-_ ]?desktop\b`),
	regexp.MustCompile(`\buser[-_ ]?data\b`),
}

var forbiddenExtensions = map[string]bool{
	".json":   true,
	".sqlite": true,
	".db":     true,
}

var allowedExtensions = map[string]bool{
	".zip":  true,
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".txt":  true,
	".csv":  true,
}

// IsFilenameAllowed reports whether an uploaded filename passes the
// policy: no session/credential-like names, no forbidden extensions,
// and the extension must be on the allow-list.
func IsFilenameAllowed(name string) bool {
	lname := strings.ToLower(name)
	for _, p := range forbiddenPatterns {
		if p.MatchString(lname) {
			return false
		}
	}
	ext := filepath.Ext(lname)
	if forbiddenExtensions[ext] {
		return false
	}
	return allowedExtensions[ext]
}

// Save copies an accepted upload into storageDir under a generated name,
// keeping the original extension. Returns the stored path and file size.
func Save(src io.Reader, storageDir, originalName string) (string, int64, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create storage dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	dst := filepath.Join(storageDir, uid.FileName(ext))

	f, err := os.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", 0, fmt.Errorf("failed to store file: %w", err)
	}
	return dst, size, nil
}
