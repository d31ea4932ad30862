// Package document reads a source report and segments it into chunks.
package document

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gri-cli/internal/model"
)

// ErrNoChunks is returned by callers that refuse to run on an empty document.
var ErrNoChunks = eris.New("document: no chunks to process")

// blankLine matches a paragraph break: a newline, optional horizontal
// whitespace, and another newline.
var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// Segment splits text on blank lines, trims each segment, drops empty ones
// and numbers the rest chunk_1..chunk_n in document order.
func Segment(text string) []model.Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := blankLine.Split(text, -1)

	chunks := make([]model.Chunk, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, model.Chunk{
			ID:      model.ChunkID(len(chunks) + 1),
			Content: p,
		})
	}
	return chunks
}

// Load reads the document at path and segments it. A missing file yields an
// empty chunk list rather than an error; any other read failure is returned.
func Load(path string) ([]model.Chunk, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			zap.L().Warn("document: file not found", zap.String("path", path))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "document: stat %s", path)
	}

	text, err := ReadText(path)
	if err != nil {
		return nil, err
	}

	chunks := Segment(text)
	zap.L().Info("document: segmented",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// ReadText returns the plain text of a .txt, .md or .docx file.
func ReadText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return readDOCX(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "document: read %s", path)
		}
		return string(data), nil
	}
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>`)
	lineBreak    = regexp.MustCompile(`<w:(br|cr)[^>]*/>`)
	tab          = regexp.MustCompile(`<w:tab[^>]*/>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

// readDOCX flattens a Word document to text with one line per paragraph, so
// empty paragraphs become the blank lines Segment splits on.
func readDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "document: open docx %s", path)
	}
	defer r.Close()

	return docxText(r.Editable().GetContent()), nil
}

func docxText(xml string) string {
	xml = paragraphEnd.ReplaceAllString(xml, "\n")
	xml = lineBreak.ReplaceAllString(xml, "\n")
	xml = tab.ReplaceAllString(xml, "\t")
	xml = xmlTag.ReplaceAllString(xml, "")
	return unescapeXML(xml)
}

var xmlEntities = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
