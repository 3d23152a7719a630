package edgar

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/trogers1052/form4-tracker/internal/models"
)

// ClassifierMode selects how footnotes influence planned-trade detection
type ClassifierMode string

// Classifier modes
const (
	// ClassifierTextPreferred reads footnote text for an explicit 10b5-1 mention and
	// only falls back to "any footnote means planned" when the text is missing.
	ClassifierTextPreferred ClassifierMode = "text"
	// ClassifierLegacy treats any footnote reference as planned.
	ClassifierLegacy ClassifierMode = "legacy"
)

// Planned-trade reasons recorded on each record
const (
	ReasonForm5        = "form5"
	ReasonAff10b51     = "aff10b5-1"
	ReasonFootnoteText = "footnote-text"
	ReasonFootnoteRef  = "footnote-ref"
)

var plannedPattern = regexp.MustCompile(`(?i)10b\s*5\s*[-‐–]?\s*1`)

// TransactionFacts are the inputs the classifier looks at
type TransactionFacts struct {
	FormType    string
	FootnoteIDs []string
	Aff10b5One  bool
	Derivative  bool
}

// Classifier marks transactions executed under a Rule 10b5-1 trading plan
type Classifier struct {
	Mode ClassifierMode
}

// Classify decides whether a transaction was planned. footnotes maps footnote
// id to text for the filing the transaction came from.
func (c Classifier) Classify(facts TransactionFacts, footnotes map[string]string) models.Classification {
	if !facts.Derivative && strings.TrimSpace(facts.FormType) == "5" {
		return models.Classification{Planned: true, Confidence: 1, Reason: ReasonForm5}
	}

	if c.Mode == ClassifierLegacy {
		if !facts.Derivative && len(facts.FootnoteIDs) > 0 {
			return models.Classification{Planned: true, Confidence: 0.3, Reason: ReasonFootnoteRef}
		}
		return models.Classification{Confidence: 0.5}
	}

	if facts.Aff10b5One {
		return models.Classification{Planned: true, Confidence: 1, Reason: ReasonAff10b51}
	}

	unresolved := false
	for _, id := range facts.FootnoteIDs {
		text, ok := footnotes[id]
		if !ok || strings.TrimSpace(text) == "" {
			unresolved = true
			continue
		}
		if plannedPattern.MatchString(text) {
			return models.Classification{Planned: true, Confidence: 0.9, Reason: ReasonFootnoteText}
		}
	}

	if unresolved && !facts.Derivative {
		return models.Classification{Planned: true, Confidence: 0.3, Reason: ReasonFootnoteRef}
	}
	if len(facts.FootnoteIDs) > 0 {
		return models.Classification{Confidence: 0.8}
	}
	return models.Classification{Confidence: 1}
}

// ClassifyFragment classifies a raw nonDerivativeTransaction or
// derivativeTransaction element.
func (c Classifier) ClassifyFragment(fragment []byte, footnotes map[string]string, aff10b5One bool) (models.Classification, error) {
	var tx rawTransaction
	if err := xml.Unmarshal(fragment, &tx); err != nil {
		return models.Classification{}, fmt.Errorf("failed to parse transaction fragment: %w", err)
	}
	facts := tx.facts(aff10b5One)
	facts.Derivative = tx.XMLName.Local == "derivativeTransaction"
	return c.Classify(facts, footnotes), nil
}
