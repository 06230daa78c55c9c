package bot

import (
	"os"
	"path/filepath"
	"sort"
)

// listFiles returns the downloadable log files: on-disk files intersected
// with ledger-registered names, newest modification first. Unregistered
// files stay invisible.
func (e *Engine) listFiles() []string {
	registered := e.ledger.Names()

	entries, err := os.ReadDir(e.logDir)
	if err != nil {
		return nil
	}

	type fileAge struct {
		name    string
		modTime int64
	}
	var files []fileAge
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := registered[entry.Name()]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{name: entry.Name(), modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}

// paginate clamps page into [0, totalPages-1] and slices out that page.
func paginate(files []string, page, pageSize int) (pageFiles []string, clamped, totalPages int) {
	totalPages = (len(files) + pageSize - 1) / pageSize
	if totalPages == 0 {
		return nil, 0, 0
	}
	if page < 0 {
		page = 0
	}
	if page > totalPages-1 {
		page = totalPages - 1
	}
	start := page * pageSize
	end := start + pageSize
	if end > len(files) {
		end = len(files)
	}
	return files[start:end], page, totalPages
}

func (e *Engine) filePath(name string) string {
	return filepath.Join(e.logDir, filepath.Base(name))
}
