// Package ingest finds replay files, parses them on a worker pool and
// replays the completions in file order.
package ingest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"slippi-tracker/internal/constants"
)

var ErrFolderNotFound = errors.New("replay folder not found")

// Folder is a scanned directory and its modification time in epoch millis.
type Folder struct {
	Path    string
	ModTime int64
}

type ScanResult struct {
	Folders []Folder
	Files   []string
	// Duplicates are the later files sharing a basename with an earlier one.
	Duplicates []string
}

// Scan lists the replay files under root that belong to folders changed
// since their watermark. Folders without a watermark are always kept.
func Scan(root string, recursive bool, watermarks map[string]int64) (ScanResult, error) {
	var res ScanResult
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, ErrFolderNotFound
		}
		return res, err
	}
	if !info.IsDir() {
		return res, ErrFolderNotFound
	}

	if !recursive {
		if changed(root, info, watermarks) {
			res.Folders = append(res.Folders, Folder{Path: root, ModTime: info.ModTime().UnixMilli()})
		}
	} else {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			if changed(path, fi, watermarks) {
				res.Folders = append(res.Folders, Folder{Path: path, ModTime: fi.ModTime().UnixMilli()})
			}
			return nil
		})
		if err != nil {
			return res, err
		}
	}

	seen := map[string]bool{}
	for _, folder := range res.Folders {
		entries, err := os.ReadDir(folder.Path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !IsReplay(e.Name()) {
				continue
			}
			path := filepath.Join(folder.Path, e.Name())
			if seen[e.Name()] {
				res.Duplicates = append(res.Duplicates, path)
				continue
			}
			seen[e.Name()] = true
			res.Files = append(res.Files, path)
		}
	}
	return res, nil
}

func changed(path string, info fs.FileInfo, watermarks map[string]int64) bool {
	mark, ok := watermarks[path]
	return !ok || mark < info.ModTime().UnixMilli()
}

// IsReplay reports whether name has the replay extension.
func IsReplay(name string) bool {
	return strings.EqualFold(filepath.Ext(name), constants.ReplayExtension)
}

// FolderSummary counts what a replay folder holds.
type FolderSummary struct {
	Files      int `json:"files"`
	Folders    int `json:"folders"`
	Duplicates int `json:"duplicates"`
}

// Summarize scans root without watermarks.
func Summarize(root string, recursive bool) (FolderSummary, error) {
	res, err := Scan(root, recursive, nil)
	if err != nil {
		return FolderSummary{}, err
	}
	return FolderSummary{
		Files:      len(res.Files),
		Folders:    len(res.Folders),
		Duplicates: len(res.Duplicates),
	}, nil
}
