// Package compress zips, unzips, gzips and gunzips files on an afero.Fs.
package compress

import (
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Compressor is what the staging code needs from a compression codec.
type Compressor interface {
	Zip(sourcePath, zipFilePath string) error
	Unzip(zipFilePath, targetDir, filter string) ([]string, error)
	GZip(filePath, targetDir string) (string, error)
	GUnzip(gzFilePath, targetDir string) (string, error)
	ListZipEntries(zipFilePath string) ([]ZipEntry, error)
}

type ZipEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

type Tools struct {
	fs  afero.Fs
	log log.Interface
}

func NewTools(fs afero.Fs, l log.Interface) *Tools {
	if l == nil {
		l = log.Log
	}

	return &Tools{fs: fs, log: l}
}

// Zip writes sourcePath, a file or a directory tree, to zipFilePath. Entry
// names are relative to the parent of sourcePath, so zipping /a/b.d yields
// entries under b.d/.
func (t *Tools) Zip(sourcePath, zipFilePath string) (err error) {
	fi, err := t.fs.Stat(sourcePath)
	if err != nil {
		return errors.Wrapf(err, "zip source %s", sourcePath)
	}

	out, err := t.fs.Create(zipFilePath)
	if err != nil {
		return errors.Wrapf(err, "creating zip file %s", zipFilePath)
	}

	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	zw := zip.NewWriter(out)
	defer func() {
		if closeErr := zw.Close(); err == nil {
			err = closeErr
		}
	}()

	if !fi.IsDir() {
		return t.addToZip(zw, sourcePath, fi.Name(), fi)
	}

	base := filepath.Dir(sourcePath)
	return afero.Walk(t.fs, sourcePath, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)
		if info.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}

		return t.addToZip(zw, path, name, info)
	})
}

func (t *Tools) addToZip(zw *zip.Writer, path, name string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	in, err := t.fs.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	_, err = io.Copy(w, in)
	return err
}

// Unzip extracts the entries of zipFilePath whose names match filter (all
// entries when filter is empty) into targetDir. It returns the paths of the
// extracted files.
func (t *Tools) Unzip(zipFilePath, targetDir, filter string) ([]string, error) {
	f, err := t.fs.Open(zipFilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening zip file %s", zipFilePath)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "reading zip file %s", zipFilePath)
	}

	if err := t.fs.MkdirAll(targetDir, 0755); err != nil {
		return nil, err
	}

	var extracted []string
	for _, zf := range r.File {
		if filter != "" && !entryMatches(filter, zf.Name) {
			continue
		}

		path, err := t.extract(zf, targetDir)
		if err != nil {
			return extracted, errors.Wrapf(err, "extracting %s from %s", zf.Name, zipFilePath)
		}

		if path != "" {
			extracted = append(extracted, path)
		}
	}

	t.log.WithField("files", len(extracted)).Debugf("Unzipped %s to %s", zipFilePath, targetDir)

	return extracted, nil
}

func entryMatches(filter, name string) bool {
	filter = strings.ToLower(filter)
	name = strings.ToLower(strings.TrimSuffix(name, "/"))
	if matched, _ := doublestar.Match(filter, name); matched {
		return true
	}

	matched, _ := doublestar.Match(filter, filepath.Base(name))
	return matched
}

func (t *Tools) extract(zf *zip.File, targetDir string) (string, error) {
	path := filepath.Join(targetDir, filepath.FromSlash(zf.Name))
	if !strings.HasPrefix(path, filepath.Clean(targetDir)+string(os.PathSeparator)) {
		return "", errors.Errorf("illegal file path in zip: %s", zf.Name)
	}

	if zf.FileInfo().IsDir() {
		return "", t.fs.MkdirAll(path, 0755)
	}

	if err := t.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	out, err := t.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(out, rc)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return "", err
	}

	modTime := zf.Modified
	if !modTime.IsZero() {
		_ = t.fs.Chtimes(path, modTime, modTime)
	}

	return path, nil
}

// ListZipEntries returns the entries stored in zipFilePath.
func (t *Tools) ListZipEntries(zipFilePath string) ([]ZipEntry, error) {
	f, err := t.fs.Open(zipFilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening zip file %s", zipFilePath)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "reading zip file %s", zipFilePath)
	}

	entries := make([]ZipEntry, 0, len(r.File))
	for _, zf := range r.File {
		info := zf.FileInfo()
		entries = append(entries, ZipEntry{
			Name:    zf.Name,
			Size:    int64(zf.UncompressedSize64),
			ModTime: zf.Modified,
			IsDir:   info.IsDir(),
		})
	}

	return entries, nil
}

// GZip compresses filePath to targetDir/<name>.gz and returns the new path.
func (t *Tools) GZip(filePath, targetDir string) (string, error) {
	fi, err := t.fs.Stat(filePath)
	if err != nil {
		return "", errors.Wrapf(err, "gzip source %s", filePath)
	}

	if targetDir == "" {
		targetDir = filepath.Dir(filePath)
	}

	gzPath := filepath.Join(targetDir, fi.Name()+".gz")

	in, err := t.fs.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	out, err := t.fs.Create(gzPath)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", gzPath)
	}

	gw := gzip.NewWriter(out)
	gw.Name = fi.Name()
	gw.ModTime = fi.ModTime()

	_, err = io.Copy(gw, in)
	if closeErr := gw.Close(); err == nil {
		err = closeErr
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = t.fs.Remove(gzPath)
		return "", errors.Wrapf(err, "compressing %s", filePath)
	}

	return gzPath, nil
}

// GUnzip decompresses gzFilePath into targetDir, dropping the .gz extension,
// and returns the new path. The modification time stored in the gzip header is
// applied to the output when present.
func (t *Tools) GUnzip(gzFilePath, targetDir string) (string, error) {
	in, err := t.fs.Open(gzFilePath)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", gzFilePath)
	}
	defer func() { _ = in.Close() }()

	gr, err := gzip.NewReader(in)
	if err != nil {
		return "", errors.Wrapf(err, "reading gzip header of %s", gzFilePath)
	}
	defer func() { _ = gr.Close() }()

	if targetDir == "" {
		targetDir = filepath.Dir(gzFilePath)
	}

	name := filepath.Base(gzFilePath)
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		name = name[:len(name)-3]
	}

	outPath := filepath.Join(targetDir, name)
	out, err := t.fs.Create(outPath)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", outPath)
	}

	_, err = io.Copy(out, gr)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = t.fs.Remove(outPath)
		return "", errors.Wrapf(err, "decompressing %s", gzFilePath)
	}

	if !gr.ModTime.IsZero() {
		_ = t.fs.Chtimes(outPath, gr.ModTime, gr.ModTime)
	}

	return outPath, nil
}
