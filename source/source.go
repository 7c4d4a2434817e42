// Package source classifies input paths and enumerates them into the
// ordered work units of a detection batch.
package source

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

// Kind classifies an input path
type Kind int

const (
	// Image is a single image file
	Image Kind = iota
	// Dir is a directory walked recursively for image files
	Dir
	// Video is a video file decoded frame by frame
	Video
)

// String returns the kind name
func (k Kind) String() string {

	switch k {
	case Image:
		return "Image"
	case Dir:
		return "Dir"
	case Video:
		return "Video"
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// imageExts are the recognised image file extensions
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// videoExts are the recognised video file extensions
var videoExts = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// SourceNotFoundError indicates the input path does not exist
type SourceNotFoundError struct {
	Path string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source path does not exist: %s", e.Path)
}

// UnsupportedSourceError indicates the input file is not a recognised
// image or video type
type UnsupportedSourceError struct {
	Path string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported source type: %s", e.Path)
}

// Source is a classified input path work units are enumerated from
type Source struct {
	// Path is the input path as given
	Path string
	// Kind is the source classification
	Kind Kind
}

// Classify resolves the given path into a Source.  A missing path fails
// with SourceNotFoundError, directories are classified ahead of file
// extension, and files with an unrecognised extension fail with
// UnsupportedSourceError
func Classify(path string) (*Source, error) {

	info, err := os.Stat(path)

	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SourceNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("stat source: %w", err)
	}

	if info.IsDir() {
		return &Source{Path: path, Kind: Dir}, nil
	}

	ext := strings.ToLower(filepath.Ext(path))

	if videoExts[ext] {
		return &Source{Path: path, Kind: Video}, nil
	}

	if imageExts[ext] {
		return &Source{Path: path, Kind: Image}, nil
	}

	return nil, &UnsupportedSourceError{Path: path}
}

// Unit is one item of work, an image file or a decoded video frame
type Unit struct {
	// Seq is the zero based position of the unit in the batch
	Seq int
	// Name is the display identifier, the file base name for image units
	// or the frame identifier for video units
	Name string
	// Path is the image file location.  It is empty for video units
	Path string
	// Frame is the decoded frame for video units.  The receiver owns the
	// Mat and must close it
	Frame gocv.Mat
	// Index is the zero based frame index for video units
	Index int
}

// ID returns the identifier recorded against detections from this unit,
// the file path for image units and the frame identifier for video units
func (u *Unit) ID() string {

	if u.Path != "" {
		return u.Path
	}

	return u.Name
}

// Feed yields the ordered work units of a source.  Next returns io.EOF
// after the final unit.  Feeds are single pass and not restartable
type Feed interface {
	Next() (*Unit, error)
	Close() error
}

// Open enumerates the source and returns its work unit feed
func (s *Source) Open() (Feed, error) {

	switch s.Kind {
	case Dir:
		paths, err := listImages(s.Path)

		if err != nil {
			return nil, err
		}

		return &imageFeed{paths: paths}, nil

	case Image:
		return &imageFeed{paths: []string{s.Path}}, nil

	case Video:
		return openVideo(s.Path)
	}

	return nil, fmt.Errorf("unknown source kind %d", int(s.Kind))
}

// Count returns the number of work units the source will yield.  For
// video sources this is the frame count recorded by the container, which
// is zero when the container does not record one
func (s *Source) Count() (int, error) {

	switch s.Kind {
	case Dir:
		paths, err := listImages(s.Path)

		if err != nil {
			return 0, err
		}

		return len(paths), nil

	case Image:
		return 1, nil

	case Video:
		vf, err := openVideo(s.Path)

		if err != nil {
			return 0, err
		}

		defer vf.Close()

		return vf.FrameCount(), nil
	}

	return 0, fmt.Errorf("unknown source kind %d", int(s.Kind))
}

// listImages walks dir recursively and returns all image files sorted by
// path for a deterministic batch order
func listImages(dir string) ([]string, error) {

	var paths []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if imageExts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(paths)

	return paths, nil
}

// imageFeed yields one unit per image file
type imageFeed struct {
	paths []string
	next  int
}

func (f *imageFeed) Next() (*Unit, error) {

	if f.next >= len(f.paths) {
		return nil, io.EOF
	}

	path := f.paths[f.next]

	unit := &Unit{
		Seq:  f.next,
		Name: filepath.Base(path),
		Path: path,
	}

	f.next++

	return unit, nil
}

func (f *imageFeed) Close() error {
	return nil
}
