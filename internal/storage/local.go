package storage

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned, wrapped with the offending path, when a record
// file does not exist
var ErrNotFound = errors.New("file not found")

// TempPattern matches the scratch files atomic writes leave behind when a
// rename never happens
const TempPattern = ".*.tmp"

// LocalStorage reads record documents by identifier and writes results
// atomically, so a failed record never leaves a partial file behind
type LocalStorage struct {
	inputDir       string
	outputDir      string
	metadataSuffix string
	rawSuffix      string
}

// NewLocalStorage creates a new local record store
func NewLocalStorage(inputDir, outputDir, metadataSuffix, rawSuffix string) *LocalStorage {
	if metadataSuffix == "" {
		metadataSuffix = ".json"
	}
	if rawSuffix == "" {
		rawSuffix = ".json.runpod"
	}
	return &LocalStorage{
		inputDir:       inputDir,
		outputDir:      outputDir,
		metadataSuffix: metadataSuffix,
		rawSuffix:      rawSuffix,
	}
}

// OutputDir returns the directory assembled documents are written to
func (ls *LocalStorage) OutputDir() string { return ls.outputDir }

// ValidateID rejects identifiers that could escape the record directories
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("empty record id")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.ContainsRune(id, 0) {
		return errors.Errorf("invalid record id %q", id)
	}
	return nil
}

// MetadataPath is where the metadata document for id lives
func (ls *LocalStorage) MetadataPath(id string) string {
	return filepath.Join(ls.inputDir, id+ls.metadataSuffix)
}

// RawPath is where the raw transcription result for id lives
func (ls *LocalStorage) RawPath(id string) string {
	return filepath.Join(ls.inputDir, id+ls.rawSuffix)
}

// OutputPath is where the assembled document for id is written
func (ls *LocalStorage) OutputPath(id string) string {
	return filepath.Join(ls.outputDir, id+".json")
}

// ReadMetadata loads the metadata document for id
func (ls *LocalStorage) ReadMetadata(id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return readFile(ls.MetadataPath(id))
}

// ReadRaw loads the persisted raw transcription result for id
func (ls *LocalStorage) ReadRaw(id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return readFile(ls.RawPath(id))
}

// HasRaw reports whether a raw result was already persisted for id
func (ls *LocalStorage) HasRaw(id string) bool {
	_, err := os.Stat(ls.RawPath(id))
	return err == nil
}

// ReadOutput loads a previously assembled document
func (ls *LocalStorage) ReadOutput(id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return readFile(ls.OutputPath(id))
}

// SaveMetadata persists an imported metadata document for id
func (ls *LocalStorage) SaveMetadata(id string, data []byte) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	if err := os.MkdirAll(ls.inputDir, 0755); err != nil {
		return "", errors.Wrapf(err, "create input directory %s", ls.inputDir)
	}
	path := ls.MetadataPath(id)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveRaw persists the raw transcription result for id
func (ls *LocalStorage) SaveRaw(id string, data []byte) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	path := ls.RawPath(id)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveOutput persists the assembled document for id
func (ls *LocalStorage) SaveOutput(id string, data []byte) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	if err := os.MkdirAll(ls.outputDir, 0755); err != nil {
		return "", errors.Wrapf(err, "create output directory %s", ls.outputDir)
	}
	path := ls.OutputPath(id)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ListRecordIDs derives record ids from metadata files in the input
// directory, sorted
func (ls *LocalStorage) ListRecordIDs() ([]string, error) {
	entries, err := os.ReadDir(ls.inputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, ls.inputDir)
		}
		return nil, errors.Wrapf(err, "list %s", ls.inputDir)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, ls.rawSuffix) || !strings.HasSuffix(name, ls.metadataSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ls.metadataSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadIDs reads one record id per line, skipping blank lines
func ReadIDs(path string) ([]string, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read ids from %s", path)
	}
	return ids, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, path)
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// writeFileAtomic writes to a scratch file in the target directory and
// renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "rename %s to %s", tmpName, path)
	}
	return nil
}
