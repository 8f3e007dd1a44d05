// Package hashcheck validates cached files against a small sidecar record
// holding the file's hash, size and modification date. Rehashing a large file
// is expensive, so a record that was verified recently is trusted as long as
// the size and date still agree.
package hashcheck

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/subosito/gotenv"
)

const SidecarExtension = ".hashcheck"

// Allowed difference between the recorded and actual modification time. Some
// filesystems only keep two second resolution.
const modTimeTolerance = 2 * time.Second

var (
	ErrSidecarMissing = errors.New("hashcheck file not found")
	ErrFileMissing    = errors.New("file to validate not found")
	ErrSizeMismatch   = errors.New("file size does not match hashcheck")
	ErrHashMismatch   = errors.New("file hash does not match hashcheck")
)

type Algorithm string

const (
	MD5  Algorithm = "md5"
	SHA1 Algorithm = "sha1"
)

func (a Algorithm) newHash() (hash.Hash, error) {
	switch Algorithm(strings.ToLower(string(a))) {
	case MD5, "":
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", string(a))
	}
}

// Record is the content of a sidecar file.
type Record struct {
	Algorithm       Algorithm
	Hash            string
	Size            int64
	ModifiedUTC     time.Time
	LastVerifiedUTC time.Time
}

// SidecarPath returns the sidecar path for filePath.
func SidecarPath(filePath string) string {
	return filePath + SidecarExtension
}

// Validation is the outcome of Validator.Validate. Err is nil when IsValid is
// true; otherwise it wraps one of the package errors.
type Validation struct {
	IsValid  bool
	Rehashed bool
	Err      error
}

func (v Validation) ErrorMessage() string {
	if v.Err == nil {
		return ""
	}

	return v.Err.Error()
}

// IsMismatch is true when the file exists and contradicts its sidecar. A
// missing sidecar is not a mismatch.
func (v Validation) IsMismatch() bool {
	return errors.Is(v.Err, ErrSizeMismatch) || errors.Is(v.Err, ErrHashMismatch)
}

type Validator struct {
	fs  afero.Fs
	log log.Interface
	now func() time.Time
}

type ValidatorOptionFN func(*Validator)

func NewValidator(fs afero.Fs, optFNs ...ValidatorOptionFN) *Validator {
	v := &Validator{fs: fs, log: log.Log, now: time.Now}

	for _, optfn := range optFNs {
		optfn(v)
	}

	return v
}

func WithLogger(l log.Interface) ValidatorOptionFN {
	return func(v *Validator) {
		v.log = l
	}
}

func WithClock(now func() time.Time) ValidatorOptionFN {
	return func(v *Validator) {
		v.now = now
	}
}

// Validate checks filePath against the record in sidecarPath. The file is only
// rehashed when its date changed or the record was last verified more than
// recheckIntervalDays ago. A successful rehash refreshes the sidecar.
func (v *Validator) Validate(filePath, sidecarPath string, algo Algorithm, recheckIntervalDays int) Validation {
	fi, err := v.fs.Stat(filePath)
	if err != nil {
		return Validation{Err: pkgerrors.Wrap(ErrFileMissing, filePath)}
	}

	record, err := v.ReadRecord(sidecarPath)
	if err != nil {
		return Validation{Err: err}
	}

	if record.Size != fi.Size() {
		return Validation{Err: pkgerrors.Wrapf(ErrSizeMismatch, "%s is %d bytes, hashcheck says %d", filePath, fi.Size(), record.Size)}
	}

	if record.Algorithm == "" {
		record.Algorithm = algo
	}

	dateMatches := absDuration(fi.ModTime().UTC().Sub(record.ModifiedUTC)) <= modTimeTolerance
	recentlyVerified := !record.LastVerifiedUTC.IsZero() &&
		v.now().UTC().Sub(record.LastVerifiedUTC) < time.Duration(recheckIntervalDays)*24*time.Hour

	if dateMatches && recentlyVerified {
		return Validation{IsValid: true}
	}

	actual, err := v.ComputeHash(filePath, record.Algorithm)
	if err != nil {
		return Validation{Err: pkgerrors.Wrapf(err, "hashing %s", filePath)}
	}

	if !strings.EqualFold(actual, record.Hash) {
		return Validation{Err: pkgerrors.Wrapf(ErrHashMismatch, "%s %s is %s, hashcheck says %s", filePath, record.Algorithm, actual, record.Hash)}
	}

	record.ModifiedUTC = fi.ModTime().UTC()
	record.LastVerifiedUTC = v.now().UTC()
	if err := v.WriteRecord(sidecarPath, record); err != nil {
		v.log.WithError(err).WithField("path", sidecarPath).Warn("Unable to update hashcheck file")
	}

	return Validation{IsValid: true, Rehashed: true}
}

// CreateSidecar hashes filePath and writes its sidecar next to it.
func (v *Validator) CreateSidecar(filePath string, algo Algorithm) (Record, error) {
	fi, err := v.fs.Stat(filePath)
	if err != nil {
		return Record{}, pkgerrors.Wrap(ErrFileMissing, filePath)
	}

	h, err := v.ComputeHash(filePath, algo)
	if err != nil {
		return Record{}, err
	}

	record := Record{
		Algorithm:       algo,
		Hash:            h,
		Size:            fi.Size(),
		ModifiedUTC:     fi.ModTime().UTC(),
		LastVerifiedUTC: v.now().UTC(),
	}

	return record, v.WriteRecord(SidecarPath(filePath), record)
}

func (v *Validator) ComputeHash(filePath string, algo Algorithm) (string, error) {
	h, err := algo.newHash()
	if err != nil {
		return "", err
	}

	f, err := v.fs.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (v *Validator) ReadRecord(sidecarPath string) (Record, error) {
	data, err := afero.ReadFile(v.fs, sidecarPath)
	switch {
	case os.IsNotExist(err):
		return Record{}, pkgerrors.Wrap(ErrSidecarMissing, sidecarPath)
	case err != nil:
		return Record{}, pkgerrors.Wrapf(err, "reading %s", sidecarPath)
	}

	env, err := gotenv.StrictParse(bytes.NewReader(data))
	if err != nil {
		return Record{}, pkgerrors.Wrapf(err, "parsing %s", sidecarPath)
	}

	record := Record{
		Algorithm: Algorithm(strings.ToLower(env["hashtype"])),
		Hash:      env["hash"],
	}

	if record.Hash == "" {
		return Record{}, pkgerrors.Errorf("%s has no hash entry", sidecarPath)
	}

	if record.Size, err = strconv.ParseInt(env["size"], 10, 64); err != nil {
		return Record{}, pkgerrors.Wrapf(err, "%s has an invalid size entry", sidecarPath)
	}

	if record.ModifiedUTC, err = parseTime(env["modification_date_utc"]); err != nil {
		return Record{}, pkgerrors.Wrapf(err, "%s has an invalid modification date", sidecarPath)
	}

	if s := env["last_verified_utc"]; s != "" {
		if record.LastVerifiedUTC, err = parseTime(s); err != nil {
			return Record{}, pkgerrors.Wrapf(err, "%s has an invalid verification date", sidecarPath)
		}
	}

	return record, nil
}

func (v *Validator) WriteRecord(sidecarPath string, record Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Hashcheck file written %s\n", v.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "hashtype=%s\n", record.Algorithm)
	fmt.Fprintf(&b, "hash=%s\n", record.Hash)
	fmt.Fprintf(&b, "size=%d\n", record.Size)
	fmt.Fprintf(&b, "modification_date_utc=%s\n", record.ModifiedUTC.UTC().Format(time.RFC3339))
	if !record.LastVerifiedUTC.IsZero() {
		fmt.Fprintf(&b, "last_verified_utc=%s\n", record.LastVerifiedUTC.UTC().Format(time.RFC3339))
	}

	return afero.WriteFile(v.fs, sidecarPath, []byte(b.String()), 0644)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(s))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}

	return d
}
