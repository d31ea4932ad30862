// Package guardrail screens extraction candidates before they reach a
// disclosure record. The extraction model is told to quote the report
// verbatim; these checks catch the answers that ignore that instruction.
package guardrail

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/gri-cli/internal/model"
)

// DefaultDenyList holds the filler phrases rejected when no list is configured.
var DefaultDenyList = []string{
	"not found",
	"not applicable",
}

// Lookup resolves a candidate key to a record.
type Lookup interface {
	Get(key string) (*model.DisclosureRecord, bool)
}

// Guard applies the candidate checks in a fixed order: unknown key, empty
// text, filler phrase.
type Guard struct {
	phrases []string
}

// New builds a guard from a deny-list. Blank entries are ignored; a nil or
// all-blank list falls back to DefaultDenyList.
func New(denyList []string) *Guard {
	g := &Guard{}
	for _, p := range denyList {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g.phrases = append(g.phrases, fold(p))
	}
	if len(g.phrases) == 0 {
		for _, p := range DefaultDenyList {
			g.phrases = append(g.phrases, fold(p))
		}
	}
	return g
}

// Phrases returns the case-folded deny-list.
func (g *Guard) Phrases() []string {
	return g.phrases
}

// Check returns the record a candidate may be merged into, or the rejection
// explaining why it must be dropped.
func (g *Guard) Check(c model.Candidate, store Lookup) (*model.DisclosureRecord, *model.Rejection) {
	rec, ok := store.Get(c.Key)
	if !ok {
		return nil, &model.Rejection{Key: c.Key, Reason: model.RejectUnknownKey}
	}
	text := strings.TrimSpace(c.ExtractedData)
	if text == "" {
		return nil, &model.Rejection{Key: c.Key, Reason: model.RejectEmptyText}
	}
	if phrase, hit := g.Filler(text); hit {
		return nil, &model.Rejection{Key: c.Key, Reason: model.RejectFillerPhrase, Detail: phrase}
	}
	return rec, nil
}

// Filler reports whether text contains a deny-listed phrase, ignoring case.
func (g *Guard) Filler(text string) (string, bool) {
	folded := fold(text)
	for _, p := range g.phrases {
		if strings.Contains(folded, p) {
			return p, true
		}
	}
	return "", false
}

// fold applies Unicode case folding. Casers are stateful, so each call
// builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
