// Package catalog reads the JSONL variant catalog produced by ingestion.
package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/prodsearch/internal/domain"
	domcat "github.com/kailas-cloud/prodsearch/internal/domain/catalog"
)

// maxLineBytes bounds a single catalog line (long HTML descriptions end up in text).
const maxLineBytes = 16 << 20

// Load reads every variant from a JSONL file. The load is all-or-nothing:
// a missing file yields domain.ErrCatalogNotFound and any bad line a *domain.MalformedRecordError.
func Load(path string) ([]domcat.Variant, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCatalogNotFound, path)
		}
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	variants, err := LoadReader(f)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return variants, nil
}

// LoadReader reads variants from r. Blank lines are skipped.
func LoadReader(r io.Reader) ([]domcat.Variant, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var variants []domcat.Variant
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		// json.Unmarshal into a struct accepts "null"; a record must be an object.
		if raw[0] != '{' {
			return nil, domain.NewMalformedRecord(line, errors.New("not a JSON object"))
		}
		var v domcat.Variant
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, domain.NewMalformedRecord(line, err)
		}
		variants = append(variants, v)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, domain.NewMalformedRecord(line+1, err)
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return variants, nil
}
