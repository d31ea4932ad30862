package template

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gri-cli/internal/model"
)

var (
	// ErrNotFound is returned when the template file does not exist.
	ErrNotFound = eris.New("template: file not found")
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = eris.New("template: missing required column")
	// ErrEmpty is returned when a template yields no records.
	ErrEmpty = eris.New("template: no disclosure rows")
	// ErrInvalidType is returned for a Type cell that is neither Metric nor Narrative.
	ErrInvalidType = eris.New("template: invalid data type")
	// ErrKeyCollision means two distinct rows render to the same key string.
	ErrKeyCollision = eris.New("template: distinct disclosures share a key string")
)

// Columns names the header cells holding each required attribute.
type Columns struct {
	RefNo            string `yaml:"ref_no" mapstructure:"ref_no"`
	Topic            string `yaml:"topic" mapstructure:"topic"`
	DisclosureSource string `yaml:"disclosure_source" mapstructure:"disclosure_source"`
	DataField        string `yaml:"data_field" mapstructure:"data_field"`
	Type             string `yaml:"type" mapstructure:"type"`
}

// DefaultColumns returns the headers used by the GRI 11 master template.
func DefaultColumns() Columns {
	return Columns{
		RefNo:            "GRI 11 Ref. No.",
		Topic:            "GRI 11 Topic",
		DisclosureSource: "Disclosure Source",
		DataField:        "Data Field (Quantitative / Qualitative / Metric)",
		Type:             "Type",
	}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.RefNo == "" {
		c.RefNo = d.RefNo
	}
	if c.Topic == "" {
		c.Topic = d.Topic
	}
	if c.DisclosureSource == "" {
		c.DisclosureSource = d.DisclosureSource
	}
	if c.DataField == "" {
		c.DataField = d.DataField
	}
	if c.Type == "" {
		c.Type = d.Type
	}
	return c
}

// Options configures template loading.
type Options struct {
	Columns Columns
	Sheet   string // xlsx only; empty selects the first sheet
}

// Load reads a .csv or .xlsx template and builds the store. Any failure here
// is fatal for a run: extraction must never start with zero fields.
func Load(ctx context.Context, path string, opts Options) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNotFound, "template: %s", path)
		}
		return nil, eris.Wrapf(err, "template: stat %s", path)
	}

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = ReadXLSX(ctx, path, opts.Sheet)
	default:
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "template: open %s", path)
		}
		defer f.Close()
		rows, err = ReadCSV(ctx, f)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "template: read %s", path)
	}

	s, err := FromRows(rows, opts.Columns)
	if err != nil {
		return nil, eris.Wrapf(err, "template: %s", path)
	}

	c := s.Counts()
	zap.L().Info("template: loaded",
		zap.String("path", path),
		zap.Int("fields", c.Total),
		zap.Int("narrative", c.Narrative),
		zap.Int("metric", c.Metric),
		zap.Int("duplicates", len(s.Duplicates())),
	)
	return s, nil
}

// FromRows builds a store from a header row followed by data rows. Rows whose
// cells are all blank are skipped.
func FromRows(rows [][]string, cols Columns) (*Store, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	cols = cols.withDefaults()

	idx, err := headerIndex(rows[0], cols)
	if err != nil {
		return nil, err
	}

	s := NewStore()
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		line := i + 2 // 1-based, after the header

		rawType := cell(row, idx.typ)
		dt, ok := model.ParseDataType(rawType)
		if !ok {
			return nil, eris.Wrapf(ErrInvalidType, "row %d: %q", line, rawType)
		}

		if _, err := s.Put(model.NewDisclosureRecord(
			cell(row, idx.refNo),
			cell(row, idx.topic),
			cell(row, idx.source),
			cell(row, idx.dataField),
			dt,
		)); err != nil {
			return nil, eris.Wrapf(err, "row %d", line)
		}
	}

	if s.Len() == 0 {
		return nil, ErrEmpty
	}
	return s, nil
}

type columnIndex struct {
	refNo, topic, source, dataField, typ int
}

func headerIndex(header []string, cols Columns) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, seen := pos[h]; !seen {
			pos[h] = i
		}
	}

	var missing []string
	lookup := func(name string) int {
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	idx := columnIndex{
		refNo:     lookup(cols.RefNo),
		topic:     lookup(cols.Topic),
		source:    lookup(cols.DisclosureSource),
		dataField: lookup(cols.DataField),
		typ:       lookup(cols.Type),
	}
	if len(missing) > 0 {
		return idx, eris.Wrapf(ErrMissingColumn, "%s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
