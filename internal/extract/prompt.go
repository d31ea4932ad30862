package extract

import (
	"encoding/json"
	"fmt"

	"github.com/sells-group/gri-cli/internal/model"
)

// SystemPrompt holds the instructions shared by every chunk request.
const SystemPrompt = `You are an expert ESG data extraction assistant. You analyze a text chunk from a company's sustainability report and map its content to a predefined list of GRI disclosure fields.

Identify which of the listed fields are directly and explicitly answered by the text chunk, using ONLY the provided text.
Respond with a JSON list of objects. For each match, create an object with two keys: "key" (the unique key from the list) and "extracted_data" (the exact sentence or phrase from the text that answers the requirement).

CRITICAL RULES:
1. DO NOT infer, invent, summarize, or generate any information. Extract text VERBATIM.
2. DO NOT answer with conversational text. Your output must ONLY be the JSON list.
3. If no fields from the list can be answered by the text, return an empty JSON list: [].`

const userPromptTemplate = `Here is the list of UNFILLED GRI disclosure fields from our template:
---
%s
---
Here is the raw text chunk from the company report:
---
%s
---`

// BuildPrompt renders the per-chunk user message.
func BuildPrompt(chunk model.Chunk, fields []model.FieldDescriptor) string {
	if fields == nil {
		fields = []model.FieldDescriptor{}
	}
	// FieldDescriptor has only string fields; marshaling cannot fail.
	listing, _ := json.MarshalIndent(fields, "", "  ")
	return fmt.Sprintf(userPromptTemplate, listing, chunk.Content)
}
