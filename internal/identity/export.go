// Package identity models the legacy identity export and the short-lived
// operator-issued tokens minted from it.
package identity

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Provider 联合身份提供方与其用户标识
type Provider struct {
	ProviderID string `json:"provider_id"`
	Subject    string `json:"subject"`
}

// LegacyIdentity 旧身份导出中的一行，只读
type LegacyIdentity struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email,omitempty"`
	Providers []Provider `json:"providers"`
}

// ExportReader streams a JSONL identity export one record at a time, so a
// large export is never materialized in memory.
type ExportReader struct {
	scanner *bufio.Scanner
	line    int
}

const maxExportLineBytes = 1 << 20

// NewExportReader wraps the given export stream.
func NewExportReader(r io.Reader) *ExportReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxExportLineBytes)

	return &ExportReader{scanner: scanner}
}

// Line returns the number of lines consumed so far, usable as a restart
// offset for Skip.
func (r *ExportReader) Line() int {
	return r.line
}

// Skip consumes n lines without decoding them, to restart a partially
// seeded export.
func (r *ExportReader) Skip(n int) error {
	for i := 0; i < n; i++ {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return errors.Wrap(err, "failed to skip export lines")
			}

			return errors.Errorf("export ended after %d lines, cannot skip %d", r.line, n)
		}
		r.line++
	}

	return nil
}

// Next returns the next identity record, or io.EOF once the export is
// exhausted. Blank lines are skipped.
func (r *ExportReader) Next() (*LegacyIdentity, error) {
	for r.scanner.Scan() {
		r.line++

		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var id LegacyIdentity
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, errors.Wrapf(err, "invalid identity record at line %d", r.line)
		}

		return &id, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read identity export")
	}

	return nil, io.EOF
}
