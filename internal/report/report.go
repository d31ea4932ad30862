// Package report compiles the template store into the final disclosure report.
package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/model"
)

// Records is the read view of a template store needed for compilation.
type Records interface {
	Records() []*model.DisclosureRecord
}

// Entry is one line of the final report.
type Entry struct {
	RefNo            string   `json:"GRI_Ref_No"`
	Topic            string   `json:"GRI_Topic"`
	DisclosureSource string   `json:"Disclosure_Source"`
	DataField        string   `json:"Data_Field"`
	Status           string   `json:"Status"`
	DataExtracted    string   `json:"Data_Extracted"`
	SourceChunks     []string `json:"Audit_Trail_Source_Chunks"`
}

// Compile flattens the store into report entries in store order.
func Compile(store Records) []Entry {
	recs := store.Records()
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		chunks := make([]string, len(r.SourceChunks))
		copy(chunks, r.SourceChunks)
		out = append(out, Entry{
			RefNo:            r.RefNo,
			Topic:            r.Topic,
			DisclosureSource: r.DisclosureSource,
			DataField:        r.DataField,
			Status:           r.Status.Label(),
			DataExtracted:    r.Data,
			SourceChunks:     chunks,
		})
	}
	return out
}

// Marshal renders entries as a JSON array with four-space indentation.
func Marshal(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return nil, eris.Wrap(err, "report: encode")
	}
	return buf.Bytes(), nil
}

// Write marshals entries to path, creating parent directories. The file is
// written to a temporary sibling and renamed into place so readers never
// observe a partial report.
func Write(path string, entries []Entry) ([]byte, error) {
	data, err := Marshal(entries)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, eris.Wrap(err, "report: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "report: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "report: close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return nil, eris.Wrap(err, "report: chmod")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, eris.Wrapf(err, "report: rename to %s", path)
	}
	return data, nil
}
