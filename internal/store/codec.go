package store

import (
	"encoding/json"

	"github.com/sells-group/gri-cli/internal/model"
)

// chunkColumns holds the JSON-encoded columns of a chunk_results row.
type chunkColumns struct {
	merged     []byte
	rejections []byte
	usage      []byte
}

func encodeChunk(res model.ChunkResult) (chunkColumns, error) {
	var cols chunkColumns
	var err error

	merged := res.Merged
	if merged == nil {
		merged = []string{}
	}
	rejections := res.Rejections
	if rejections == nil {
		rejections = []model.Rejection{}
	}

	if cols.merged, err = json.Marshal(merged); err != nil {
		return cols, err
	}
	if cols.rejections, err = json.Marshal(rejections); err != nil {
		return cols, err
	}
	if cols.usage, err = json.Marshal(res.TokenUsage); err != nil {
		return cols, err
	}
	return cols, nil
}

func decodeChunk(res *model.ChunkResult, merged, rejections, usage []byte) error {
	if err := json.Unmarshal(merged, &res.Merged); err != nil {
		return err
	}
	if err := json.Unmarshal(rejections, &res.Rejections); err != nil {
		return err
	}
	return json.Unmarshal(usage, &res.TokenUsage)
}
