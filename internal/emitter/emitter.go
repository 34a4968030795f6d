// Package emitter writes an extracted output set to disk: the binary key
// file, its text mirror and the residual geosite archive.
package emitter

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/bnema/geosite-keys/internal/domainkey"
	"github.com/bnema/geosite-keys/internal/extractor"
	"github.com/bnema/geosite-keys/internal/geosite"
	"github.com/bnema/geosite-keys/internal/models"
)

// TextHeading is the first line of the text mirror.
const TextHeading = "# Suffix Domains"

// WriteError reports an output file that could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Emitter writes output files
type Emitter struct {
	fs afero.Fs
}

// New creates an emitter on fs. A nil fs writes to the OS filesystem.
func New(fs afero.Fs) *Emitter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Emitter{fs: fs}
}

// Emit writes the binary key file and then the text mirror. On failure the
// files already completed are left in place and the run must be repeated.
func (e *Emitter) Emit(set *extractor.OutputSet, binaryPath, textPath string) error {
	keys := set.SortedKeys()
	if err := e.writeFile(binaryPath, func(w io.Writer) error {
		return WriteKeys(w, keys)
	}); err != nil {
		return err
	}

	originals := set.SortedOriginals()
	return e.writeFile(textPath, func(w io.Writer) error {
		return WriteText(w, originals)
	})
}

// EmitResidual writes the residual records as a single-group archive tagged tag.
func (e *Emitter) EmitResidual(set *extractor.OutputSet, path, tag string) error {
	group := models.Group{Tag: tag, Domains: MergeResidual(set.Residual())}
	return e.writeFile(path, func(w io.Writer) error {
		return geosite.Write(w, []models.Group{group})
	})
}

// WriteKeys writes each key as 16 little-endian bytes, with no framing.
func WriteKeys(w io.Writer, keys []domainkey.Key) error {
	buf := make([]byte, 0, domainkey.Size*len(keys))
	for _, k := range keys {
		buf = domainkey.AppendBytes(buf, k)
	}
	_, err := w.Write(buf)
	return err
}

// WriteText writes the heading then one domain per line.
func WriteText(w io.Writer, domains []string) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(TextHeading)
	bw.WriteByte('\n')
	for _, d := range domains {
		bw.WriteString(d)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// MergeResidual removes duplicate records and sorts the rest by type, value
// and attributes.
func MergeResidual(records []models.DomainRecord) []models.DomainRecord {
	merged := slices.Clone(records)
	slices.SortStableFunc(merged, compareRecords)
	return slices.CompactFunc(merged, func(a, b models.DomainRecord) bool {
		return compareRecords(a, b) == 0
	})
}

func compareRecords(a, b models.DomainRecord) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	return slices.CompareFunc(a.Attributes, b.Attributes, compareAttributes)
}

func compareAttributes(a, b models.Attribute) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	switch a.Kind {
	case models.AttrBool:
		return cmp.Compare(boolInt(a.Bool), boolInt(b.Bool))
	case models.AttrInt:
		return cmp.Compare(a.Int, b.Int)
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// writeFile writes to path+".tmp" and renames it over path once complete.
func (e *Emitter) writeFile(path string, write func(io.Writer) error) error {
	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	tmpPath := path + ".tmp"
	f, err := e.fs.Create(tmpPath)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	err = write(f)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		e.fs.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}

	if err := e.fs.Rename(tmpPath, path); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
