// Package importer streams ingested entry candidates from a JSONL
// intermediate file into the store in fixed-size batches, embedding each
// batch and reporting progress through a pluggable observer.
package importer

import (
	"bufio"
	"encoding/json"
	"os"

	tmerr "github.com/rmraya/hybridtm/internal/errors"
	"github.com/rmraya/hybridtm/internal/tm"
)

// CandidateFile is a newline-delimited JSON temp file of entry candidates
// (entries without embeddings), written by the ingestors and consumed by
// the importer. One JSON object per line, UTF-8, nested metadata encoded
// as nested objects.
type CandidateFile struct {
	// Path of the temp file.
	Path string

	// Count of candidates written.
	Count int

	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// CreateCandidateFile creates a fresh candidate file in the system temp
// directory.
func CreateCandidateFile() (*CandidateFile, error) {
	f, err := os.CreateTemp("", "hybridtm-*.jsonl")
	if err != nil {
		return nil, tmerr.Wrap(tmerr.KindStoreError, "create candidate file", err)
	}
	w := bufio.NewWriter(f)
	return &CandidateFile{
		Path: f.Name(),
		file: f,
		w:    w,
		enc:  json.NewEncoder(w),
	}, nil
}

// Add appends one candidate entry as a JSON line.
func (c *CandidateFile) Add(e *tm.Entry) error {
	if err := c.enc.Encode(e); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "write candidate", err).WithPath(c.Path)
	}
	c.Count++
	return nil
}

// Finish flushes and closes the file, leaving it on disk for the importer.
func (c *CandidateFile) Finish() error {
	if err := c.w.Flush(); err != nil {
		_ = c.file.Close()
		return tmerr.Wrap(tmerr.KindStoreError, "flush candidate file", err).WithPath(c.Path)
	}
	if err := c.file.Close(); err != nil {
		return tmerr.Wrap(tmerr.KindStoreError, "close candidate file", err).WithPath(c.Path)
	}
	return nil
}

// Discard closes and removes the file. Used on ingest error paths; safe
// to call after Finish.
func (c *CandidateFile) Discard() {
	_ = c.file.Close()
	_ = os.Remove(c.Path)
}
