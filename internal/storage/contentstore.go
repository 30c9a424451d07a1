package storage

import (
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kolesa-team/go-webp/webp"
	xwebp "golang.org/x/image/webp"

	"github.com/rohmanhakim/canopy-go/internal/metadata"
	"github.com/rohmanhakim/canopy-go/pkg/failure"
	"github.com/rohmanhakim/canopy-go/pkg/fileutil"
)

/*
Responsibilities
- Persist per-page crawl artifacts
- Ensure deterministic filenames
- Compress text artifacts, recompress images

Output Characteristics
- Stable directory layout, one directory per page:

	<root>/<host>/<urlID>/
	  html[.gz]
	  screenshot.webp
	  dom_trees.json[.gz]
	  css/<name>[.gz]
	  component_screenshots/<name>.webp
	  metadata.json

- Idempotent writes
- Overwrite-safe reruns

urlID is derived from the canonical URL, not the fetch order, so reruns
of the same crawl land on the same directory.
*/
type ContentStore struct {
	root         string
	compress     bool
	metadataSink metadata.MetadataSink
}

// NewContentStore builds a ContentStore rooted at root. compress controls
// whether text-like artifacts (html, dom tree JSON, css) are gzipped;
// images are already compressed by the WebP encoder and are never
// gzipped again.
func NewContentStore(root string, compress bool, metadataSink metadata.MetadataSink) *ContentStore {
	return &ContentStore{root: root, compress: compress, metadataSink: metadataSink}
}

// URLID derives the page directory name from a canonical URL: the first
// 12 hex characters of its MD5 digest. MD5 here is an identifier, not a
// security primitive.
func URLID(canonicalURL string) string {
	sum := md5.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])[:12]
}

func sanitizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, host)
}

func (s *ContentStore) pageDir(host, urlID string) string {
	return filepath.Join(s.root, sanitizeHost(host), urlID)
}

func compressible(name string) bool {
	// The raw page body is stored under the bare name "html".
	if filepath.Base(name) == "html" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".html", ".json", ".css", ".txt", ".xml", ".md":
		return true
	default:
		return false
	}
}

func artifactKindFor(name string) metadata.ArtifactKind {
	switch {
	case strings.HasPrefix(name, "css/"):
		return metadata.ArtifactCSS
	case strings.HasPrefix(name, "dom_trees"):
		return metadata.ArtifactDOMTree
	case strings.HasPrefix(name, "metadata"):
		return metadata.ArtifactMetadata
	case strings.HasSuffix(name, ".md"):
		return metadata.ArtifactMarkdown
	case strings.HasPrefix(name, "component_screenshots/"), strings.HasPrefix(name, "screenshot"):
		return metadata.ArtifactScreenshot
	default:
		return metadata.ArtifactHTML
	}
}

// storageErr wraps a filesystem failure into the classified error table,
// marking disk-full as retryable the same way the fetch layer marks 5xx.
func storageErr(err error, path string) *StorageError {
	cause := ErrCauseWriteFailure
	retryable := false
	if errors.Is(err, syscall.ENOSPC) {
		cause = ErrCauseDiskFull
		retryable = true
	}
	return &StorageError{
		Message:   err.Error(),
		Retryable: retryable,
		Cause:     cause,
		Path:      path,
	}
}

func (s *ContentStore) recordArtifact(kind metadata.ArtifactKind, host, path string) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordArtifact(kind, path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrHost, host),
		metadata.NewAttr(metadata.AttrWritePath, path),
	})
}

func (s *ContentStore) recordError(host, path string, serr *StorageError) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		"ContentStore.Write",
		mapStorageErrorToMetadataCause(serr),
		serr.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrHost, host),
			metadata.NewAttr(metadata.AttrWritePath, path),
		},
	)
}

func (s *ContentStore) ensurePageDir(host, urlID, name string) (string, failure.ClassifiedError) {
	dir := s.pageDir(host, urlID)
	sub := filepath.Dir(name)
	var err error
	if sub != "." {
		err = fileutil.EnsureDir(dir, sub)
	} else {
		err = fileutil.EnsureDir(dir)
	}
	if err != nil {
		serr := &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError, Path: dir}
		s.recordError(host, dir, serr)
		return "", serr
	}
	return dir, nil
}

// WriteArtifact persists an arbitrary named blob under the page directory
// for (host, urlID), gzip-compressing text-like artifacts (html/json/css)
// when compression is enabled. name may include a subdirectory, e.g.
// "css/vendor.css".
func (s *ContentStore) WriteArtifact(host, urlID, name string, data []byte) (string, error) {
	dir, derr := s.ensurePageDir(host, urlID, name)
	if derr != nil {
		return "", derr
	}

	path := filepath.Join(dir, name)
	if s.compress && compressible(name) {
		path += ".gz"
		if err := writeGzip(path, data); err != nil {
			serr := storageErr(err, path)
			s.recordError(host, path, serr)
			return "", serr
		}
	} else {
		if err := os.WriteFile(path, data, 0644); err != nil {
			serr := storageErr(err, path)
			s.recordError(host, path, serr)
			return "", serr
		}
	}

	s.recordArtifact(artifactKindFor(name), host, path)
	return path, nil
}

func writeGzip(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		return err
	}
	return gz.Close()
}

// webpQuality matches the quality the crawl recompresses screenshots at.
const webpQuality = 85

// WriteImage persists img as a WebP artifact under the page directory.
// Used for full-page screenshots and per-component screenshots alike;
// images are never gzipped since WebP is already compressed.
func (s *ContentStore) WriteImage(host, urlID, name string, img image.Image) (string, error) {
	dir, derr := s.ensurePageDir(host, urlID, name)
	if derr != nil {
		return "", derr
	}

	options, err := webp.NewEncoderOptions(webp.PresetPicture, webpQuality)
	if err != nil {
		serr := &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, Path: dir}
		s.recordError(host, dir, serr)
		return "", serr
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		serr := storageErr(err, path)
		s.recordError(host, path, serr)
		return "", serr
	}
	defer f.Close()

	if err := webp.Encode(f, img, options); err != nil {
		serr := storageErr(err, path)
		s.recordError(host, path, serr)
		return "", serr
	}

	s.recordArtifact(metadata.ArtifactScreenshot, host, path)
	return path, nil
}

// ReadImage decodes a previously written WebP artifact back into an
// image.Image, used by verification tooling and tests to confirm the
// recompression round trip.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, storageErr(err, path)
	}
	defer f.Close()
	return xwebp.Decode(f)
}

// PageMetadata is the per-page summary written as metadata.json,
// capturing exactly what was durable about a crawl of one URL.
type PageMetadata struct {
	URL         string    `json:"url"`
	Host        string    `json:"host"`
	URLID       string    `json:"urlId"`
	Depth       int       `json:"depth"`
	Source      string    `json:"source"`
	StatusCode  int       `json:"statusCode"`
	ContentType string    `json:"contentType"`
	ContentHash string    `json:"contentHash,omitempty"`
	FetchedAt   time.Time `json:"crawledAt"`
}

// WritePageMetadata serializes meta to metadata.json inside the page
// directory, always uncompressed so it stays a single readable file a
// human (or a downstream indexing pipeline) can open directly.
func (s *ContentStore) WritePageMetadata(host, urlID string, meta PageMetadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		serr := &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure, Path: urlID}
		s.recordError(host, urlID, serr)
		return "", serr
	}

	dir, derr := s.ensurePageDir(host, urlID, "metadata.json")
	if derr != nil {
		return "", derr
	}
	path := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		serr := storageErr(err, path)
		s.recordError(host, path, serr)
		return "", serr
	}

	s.recordArtifact(metadata.ArtifactMetadata, host, path)
	return path, nil
}

// HostOf returns the host component of a parsed URL, empty on a nil URL.
func HostOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Host
}
