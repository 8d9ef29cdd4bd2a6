package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/voss/flowrag/internal/models"
)

// supportedExtensions are the document types the loader can turn into text.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".html": true,
	".htm":  true,
}

// skippedNames are directory or file names never considered documents.
var skippedNames = map[string]bool{
	"__pycache__":  true,
	".git":         true,
	".svn":         true,
	"node_modules": true,
	".DS_Store":    true,
}

// Loader scans a documents folder and loads supported files into text
// documents. Unreadable or unsupported files are reported per file while the
// rest of the batch continues.
type Loader struct {
	folder string
	logger *slog.Logger
}

// Stats summarizes the loadable contents of the folder by extension.
type Stats struct {
	TotalFiles   int
	TotalBytes   int64
	CountsByType map[string]int
}

// LoadResult carries the successfully loaded documents together with the
// per-file errors encountered along the way.
type LoadResult struct {
	Documents []models.Document
	Failures  []error
}

// New creates a loader rooted at folder. The folder must exist and be a
// readable directory.
func New(folder string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(folder)
	if err != nil {
		return nil, &FileAccessError{Path: folder, Op: "stat", Err: err}
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents path is not a directory: %s", folder)
	}
	if _, err := os.ReadDir(folder); err != nil {
		return nil, &FileAccessError{Path: folder, Op: "read", Err: err}
	}

	return &Loader{folder: folder, logger: logger}, nil
}

// Folder returns the root the loader scans.
func (l *Loader) Folder() string { return l.folder }

// Supported reports whether the extension (with leading dot) is loadable.
func Supported(ext string) bool {
	return supportedExtensions[strings.ToLower(ext)]
}

// Scan walks the folder and returns metadata for every supported document.
// With recursive unset only the top level is scanned.
func (l *Loader) Scan(recursive bool) ([]models.DocumentMetadata, error) {
	var metas []models.DocumentMetadata

	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != l.folder && (skippedNames[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			if !recursive && path != l.folder {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || skippedNames[d.Name()] {
			return nil
		}
		if !Supported(filepath.Ext(d.Name())) {
			return nil
		}

		meta, err := l.metadata(path)
		if err != nil {
			l.logger.Warn("failed to stat document", "path", path, "error", err)
			return nil
		}
		metas = append(metas, meta)
		return nil
	}

	if err := filepath.WalkDir(l.folder, walk); err != nil {
		return nil, fmt.Errorf("failed to scan documents folder: %w", err)
	}

	return metas, nil
}

// Load scans the folder and extracts text from every supported document.
// A file that cannot be read or parsed contributes a typed error to
// LoadResult.Failures without aborting the rest.
func (l *Loader) Load(recursive bool) (*LoadResult, error) {
	metas, err := l.Scan(recursive)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	for _, meta := range metas {
		doc, err := l.LoadFile(meta.FilePath)
		if err != nil {
			l.logger.Warn("failed to load document", "path", meta.FilePath, "error", err)
			result.Failures = append(result.Failures, err)
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	return result, nil
}

// LoadFile extracts a single file into a document. The path does not need to
// live under the loader's folder; uploads are loaded through the same path.
func (l *Loader) LoadFile(path string) (models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return models.Document{}, &UnsupportedFileTypeError{Path: path, Extension: ext}
	}

	meta, err := l.metadata(path)
	if err != nil {
		return models.Document{}, err
	}

	content, err := extractText(path, ext)
	if err != nil {
		return models.Document{}, err
	}

	return models.Document{
		ID:       documentID(path),
		Metadata: meta,
		Content:  content,
	}, nil
}

// Stats reports counts and sizes by extension without loading content.
func (l *Loader) Stats(recursive bool) (*Stats, error) {
	metas, err := l.Scan(recursive)
	if err != nil {
		return nil, err
	}

	stats := &Stats{CountsByType: make(map[string]int)}
	for _, meta := range metas {
		stats.TotalFiles++
		stats.TotalBytes += meta.FileSize
		stats.CountsByType[meta.Extension]++
	}
	return stats, nil
}

func (l *Loader) metadata(path string) (models.DocumentMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.DocumentMetadata{}, &FileAccessError{Path: path, Op: "stat", Err: err}
	}

	rel, err := filepath.Rel(l.folder, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	return models.DocumentMetadata{
		FilePath:     path,
		FileName:     filepath.Base(path),
		FileSize:     info.Size(),
		Extension:    strings.ToLower(filepath.Ext(path)),
		ModifiedDate: info.ModTime(),
		RelativePath: rel,
	}, nil
}

// documentID derives a stable ID from the file path so re-indexing the same
// file upserts rather than duplicates.
func documentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:16])
}
