package edgar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/form4-tracker/internal/models"
)

type valueElem struct {
	Value string `xml:"value"`
}

type ownershipDocument struct {
	XMLName         xml.Name         `xml:"ownershipDocument"`
	DocumentType    string           `xml:"documentType"`
	PeriodOfReport  string           `xml:"periodOfReport"`
	Aff10b5One      string           `xml:"aff10b5One"`
	Issuer          issuer           `xml:"issuer"`
	ReportingOwners []reportingOwner `xml:"reportingOwner"`
	NonDerivative   []rawTransaction `xml:"nonDerivativeTable>nonDerivativeTransaction"`
	Derivative      []rawTransaction `xml:"derivativeTable>derivativeTransaction"`
	Footnotes       []footnote       `xml:"footnotes>footnote"`
}

type issuer struct {
	CIK    string `xml:"issuerCik"`
	Name   string `xml:"issuerName"`
	Symbol string `xml:"issuerTradingSymbol"`
}

type reportingOwner struct {
	Name         string       `xml:"reportingOwnerId>rptOwnerName"`
	Relationship relationship `xml:"reportingOwnerRelationship"`
}

type relationship struct {
	IsDirector        string `xml:"isDirector"`
	IsOfficer         string `xml:"isOfficer"`
	IsTenPercentOwner string `xml:"isTenPercentOwner"`
	IsOther           string `xml:"isOther"`
	OfficerTitle      string `xml:"officerTitle"`
}

type footnote struct {
	ID   string `xml:"id,attr"`
	Text string `xml:",chardata"`
}

type rawTransaction struct {
	XMLName         xml.Name
	TransactionDate valueElem `xml:"transactionDate"`
	Coding          struct {
		FormType string `xml:"transactionFormType"`
		Code     string `xml:"transactionCode"`
	} `xml:"transactionCoding"`
	Amounts struct {
		Shares valueElem `xml:"transactionShares"`
		Price  valueElem `xml:"transactionPricePerShare"`
	} `xml:"transactionAmounts"`
	ConversionPrice  valueElem `xml:"conversionOrExercisePrice"`
	UnderlyingShares valueElem `xml:"underlyingSecurity>underlyingSecurityShares"`
	Inner            []byte    `xml:",innerxml"`
}

// Role derives the insider's display role from the relationship flags
func (r relationship) Role() string {
	switch {
	case parseFlag(r.IsDirector):
		return "Director"
	case parseFlag(r.IsOfficer):
		if title := strings.TrimSpace(r.OfficerTitle); title != "" {
			return title
		}
		return "Officer"
	case parseFlag(r.IsTenPercentOwner):
		return "10% Owner"
	default:
		return "Other"
	}
}

func (tx rawTransaction) facts(aff10b5One bool) TransactionFacts {
	return TransactionFacts{
		FormType:    strings.TrimSpace(tx.Coding.FormType),
		FootnoteIDs: footnoteRefs(tx.Inner),
		Aff10b5One:  aff10b5One,
	}
}

// ParseFiling downloads one filing and returns its transactions
func (c *Client) ParseFiling(ctx context.Context, ref models.FilingRef) ([]models.TransactionRecord, error) {
	xmlURL := ref.URL
	if !strings.HasSuffix(strings.ToLower(xmlURL), ".xml") {
		resolved, err := c.resolveOwnershipXML(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
		xmlURL = resolved
	}

	body, err := c.get(ctx, xmlURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ownership xml for %s: %w", ref.AccessionNumber, err)
	}

	return ParseOwnershipDocument(body, ref, c.classifier)
}

// resolveOwnershipXML scans a filing index page for the raw ownership XML link,
// skipping the xslF345 rendered copy.
func (c *Client) resolveOwnershipXML(ctx context.Context, indexURL string) (string, error) {
	body, err := c.get(ctx, indexURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch filing index: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse filing index: %w", err)
	}

	base, err := url.Parse(indexURL)
	if err != nil {
		return "", fmt.Errorf("invalid filing index url %q: %w", indexURL, err)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)
		if !strings.HasSuffix(lower, ".xml") || strings.Contains(lower, "xslf345") {
			return true
		}
		link, err := url.Parse(href)
		if err != nil {
			return true
		}
		found = base.ResolveReference(link).String()
		return false
	})

	if found == "" {
		return "", fmt.Errorf("%s: %w", indexURL, ErrNoOwnershipXML)
	}
	return found, nil
}

// ParseOwnershipDocument turns a Form 4 ownershipDocument into records.
// Amounts are always recomputed from shares and price, and records with no
// shares and no amount are dropped.
func ParseOwnershipDocument(data []byte, ref models.FilingRef, classifier Classifier) ([]models.TransactionRecord, error) {
	var doc ownershipDocument
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse ownership xml for %s: %w", ref.AccessionNumber, err)
	}
	if len(doc.ReportingOwners) == 0 {
		return nil, fmt.Errorf("ownership document %s has no reporting owner", ref.AccessionNumber)
	}

	footnotes := make(map[string]string, len(doc.Footnotes))
	for _, f := range doc.Footnotes {
		footnotes[f.ID] = strings.TrimSpace(f.Text)
	}
	aff := parseFlag(doc.Aff10b5One)

	owner := doc.ReportingOwners[0]
	base := models.TransactionRecord{
		AccessionNumber: ref.AccessionNumber,
		Ticker:          ref.Ticker,
		CompanyName:     ref.CompanyName,
		OwnerName:       strings.TrimSpace(owner.Name),
		Role:            owner.Relationship.Role(),
		FilingDate:      ref.FilingDate,
	}
	if base.Ticker == "" {
		base.Ticker = strings.ToUpper(strings.TrimSpace(doc.Issuer.Symbol))
	}
	if base.Ticker == "" {
		base.Ticker = "UNKNOWN"
	}
	if base.CompanyName == "" {
		base.CompanyName = strings.TrimSpace(doc.Issuer.Name)
	}
	if base.OwnerName == "" {
		base.OwnerName = "Unknown"
	}

	var records []models.TransactionRecord
	for i, tx := range doc.NonDerivative {
		rec := base
		rec.Line = i + 1
		rec.TransactionType = transactionType(tx.Coding.Code, "A", "P")
		rec.Shares = parseDecimal(tx.Amounts.Shares.Value)
		rec.Price = parseDecimal(tx.Amounts.Price.Value)
		rec.TransactionDate = transactionDate(tx.TransactionDate.Value, ref.FilingDate)

		class := classifier.Classify(tx.facts(aff), footnotes)
		rec.IsPlanned, rec.PlannedReason = class.Planned, class.Reason

		rec.Normalize()
		if rec.IsEmpty() {
			continue
		}
		records = append(records, rec)
	}

	for i, tx := range doc.Derivative {
		rec := base
		rec.Line = len(doc.NonDerivative) + i + 1
		rec.TransactionType = transactionType(tx.Coding.Code, "A", "P", "M")
		rec.Shares = firstDecimal(tx.UnderlyingShares.Value, tx.Amounts.Shares.Value)
		rec.Price = firstDecimal(tx.ConversionPrice.Value, tx.Amounts.Price.Value)
		rec.TransactionDate = transactionDate(tx.TransactionDate.Value, ref.FilingDate)

		facts := tx.facts(aff)
		facts.Derivative = true
		class := classifier.Classify(facts, footnotes)
		rec.IsPlanned, rec.PlannedReason = class.Planned, class.Reason

		rec.Normalize()
		if rec.IsEmpty() {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func transactionType(code string, buyCodes ...string) models.TransactionType {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range buyCodes {
		if code == c {
			return models.TransactionTypeBuy
		}
	}
	return models.TransactionTypeSell
}

func transactionDate(value string, fallback models.Date) models.Date {
	value = strings.TrimSpace(value)
	if len(value) >= len(models.DateLayout) {
		if d, err := models.ParseDate(value[:len(models.DateLayout)]); err == nil {
			return d
		}
	}
	return fallback
}

func parseDecimal(s string) decimal.Decimal {
	s = strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// firstDecimal returns the first value that is present
func firstDecimal(values ...string) decimal.Decimal {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return parseDecimal(v)
		}
	}
	return decimal.Zero
}

func parseFlag(s string) bool {
	s = strings.TrimSpace(s)
	return s == "1" || strings.EqualFold(s, "true")
}

// footnoteRefs collects the ids of every footnoteId element nested anywhere
// inside a transaction.
func footnoteRefs(inner []byte) []string {
	if len(inner) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(inner))
	dec.Strict = false

	var ids []string
	seen := make(map[string]bool)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "footnoteId" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "id" && !seen[attr.Value] {
				seen[attr.Value] = true
				ids = append(ids, attr.Value)
			}
		}
	}
	return ids
}
