package model

import (
	"slices"
	"strings"
)

// DataType controls whether a disclosure field is offered to the extraction client.
type DataType string

const (
	DataTypeMetric    DataType = "Metric"
	DataTypeNarrative DataType = "Narrative"
)

// ParseDataType normalizes a template type cell. The match is case-insensitive
// and ignores surrounding whitespace.
func ParseDataType(s string) (DataType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metric":
		return DataTypeMetric, true
	case "narrative":
		return DataTypeNarrative, true
	default:
		return "", false
	}
}

// FieldStatus is the fill state of a disclosure record.
type FieldStatus string

const (
	StatusMissing   FieldStatus = "MISSING"
	StatusPopulated FieldStatus = "POPULATED"
)

// Label renders the status the way it appears in the final report.
func (s FieldStatus) Label() string {
	if s == StatusPopulated {
		return "FOUND (POPULATED)"
	}
	return "[Data Missing/Omission]"
}

// AppendMarker returns the separator placed before text merged into a record
// that already holds data.
func AppendMarker(chunkID string) string {
	return "\n--- Appended Source (" + chunkID + ") ---\n"
}

// Key identifies a disclosure requirement within a template.
type Key struct {
	RefNo            string `json:"ref_no"`
	DataField        string `json:"data_field"`
	DisclosureSource string `json:"disclosure_source"`
}

// String is the form of the key shown to the extraction model and used for
// lookups of its answers.
func (k Key) String() string {
	return k.RefNo + "_" + k.DataField + "_" + k.DisclosureSource
}

// DisclosureRecord is one required field of the report together with the
// text accumulated for it and the chunks that contributed that text.
type DisclosureRecord struct {
	RefNo            string      `json:"ref_no"`
	Topic            string      `json:"topic"`
	DisclosureSource string      `json:"disclosure_source"`
	DataField        string      `json:"data_field"`
	DataType         DataType    `json:"data_type"`
	Data             string      `json:"data"`
	SourceChunks     []string    `json:"source_chunks"`
	Status           FieldStatus `json:"status"`
}

// NewDisclosureRecord returns an empty record in the MISSING state.
func NewDisclosureRecord(refNo, topic, source, dataField string, dataType DataType) *DisclosureRecord {
	return &DisclosureRecord{
		RefNo:            refNo,
		Topic:            topic,
		DisclosureSource: source,
		DataField:        dataField,
		DataType:         dataType,
		SourceChunks:     []string{},
		Status:           StatusMissing,
	}
}

// Key returns the composite template key of the record.
func (r *DisclosureRecord) Key() Key {
	return Key{RefNo: r.RefNo, DataField: r.DataField, DisclosureSource: r.DisclosureSource}
}

// Filled reports whether any text has been merged into the record.
func (r *DisclosureRecord) Filled() bool {
	return r.Data != ""
}

// Eligible reports whether the record should still be offered to the
// extraction client.
func (r *DisclosureRecord) Eligible() bool {
	return r.DataType == DataTypeNarrative && !r.Filled()
}

// Merge adds text contributed by chunkID. Existing text is never rewritten:
// later contributions are appended after a marker naming their chunk. The
// caller is responsible for rejecting empty text.
func (r *DisclosureRecord) Merge(text, chunkID string) {
	if r.Data == "" {
		r.Data = text
	} else {
		r.Data += AppendMarker(chunkID) + text
	}
	if !slices.Contains(r.SourceChunks, chunkID) {
		r.SourceChunks = append(r.SourceChunks, chunkID)
	}
	r.Status = StatusPopulated
}

// FieldDescriptor is what the extraction client sees of an unfilled field.
type FieldDescriptor struct {
	Key         string `json:"key"`
	RefNo       string `json:"ref_no"`
	Description string `json:"description"`
}

// Descriptor builds the client-facing view of the record.
func (r *DisclosureRecord) Descriptor() FieldDescriptor {
	return FieldDescriptor{
		Key:         r.Key().String(),
		RefNo:       r.RefNo,
		Description: r.DataField,
	}
}
