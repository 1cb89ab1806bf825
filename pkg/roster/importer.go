package roster

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ImportFile is one enrollment image found in a faces directory.
type ImportFile struct {
	Path string
	Name string
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// NameFromFile derives a display name from an image file name:
// "john_doe.jpg" becomes "John Doe".
func NameFromFile(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.Join(strings.Fields(strings.ReplaceAll(base, "_", " ")), " ")
	return cases.Title(language.Und).String(base)
}

// ScanDir lists the enrollment images directly inside dir, sorted by file name.
func ScanDir(dir string) ([]ImportFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read faces directory: %w", err)
	}

	var files []ImportFile
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, ImportFile{
			Path: filepath.Join(dir, e.Name()),
			Name: NameFromFile(e.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
