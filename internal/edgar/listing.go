package edgar

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/trogers1052/form4-tracker/internal/models"
)

const formType4 = "4"

type submissionsResponse struct {
	CIK     string   `json:"cik"`
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// ListRecentFilingRefs lists the newest Form 4 filings for a ticker, or for the
// whole market when subject is models.MarketSubject.
func (c *Client) ListRecentFilingRefs(ctx context.Context, subject string, window models.FilingWindow) ([]models.FilingRef, error) {
	if subject == models.MarketSubject {
		return c.listMarketFilings(ctx, window)
	}

	info, err := c.LookupTicker(ctx, subject)
	if err != nil {
		return nil, err
	}
	return c.listCompanyFilings(ctx, info, window)
}

func (c *Client) listCompanyFilings(ctx context.Context, info TickerInfo, window models.FilingWindow) ([]models.FilingRef, error) {
	var resp submissionsResponse
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.cfg.DataBaseURL, PadCIK(info.CIK))
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("failed to list filings for %s: %w", info.Ticker, err)
	}

	recent := resp.Filings.Recent
	n := len(recent.AccessionNumber)
	if len(recent.Form) < n || len(recent.FilingDate) < n {
		return nil, fmt.Errorf("malformed submissions for %s: mismatched arrays", info.Ticker)
	}

	var refs []models.FilingRef
	for i := 0; i < n; i++ {
		if window.Limit > 0 && len(refs) >= window.Limit {
			break
		}
		if recent.Form[i] != formType4 {
			continue
		}
		filed, err := models.ParseDate(recent.FilingDate[i])
		if err != nil {
			continue
		}
		if !window.Since.IsZero() && filed.Before(window.Since) {
			// recent filings are newest first
			break
		}

		var primary string
		if i < len(recent.PrimaryDocument) {
			primary = recent.PrimaryDocument[i]
		}

		refs = append(refs, models.FilingRef{
			URL:             c.filingURL(info.CIK, recent.AccessionNumber[i], primary),
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      filed,
			Ticker:          info.Ticker,
			CompanyName:     info.Title,
			CIK:             info.CIK,
		})
	}
	return refs, nil
}

// filingURL points at the raw ownership XML when the primary document names it,
// otherwise at the filing index page.
func (c *Client) filingURL(cik, accession, primaryDocument string) string {
	folder := fmt.Sprintf("%s/Archives/edgar/data/%s/%s", c.cfg.WWWBaseURL, TrimCIK(cik), strings.ReplaceAll(accession, "-", ""))
	if strings.HasSuffix(strings.ToLower(primaryDocument), ".xml") {
		return folder + "/" + path.Base(primaryDocument)
	}
	return folder + "/" + accession + "-index.htm"
}

const (
	marketPageSize = 100
	marketMaxPages = 10
)

var (
	accessionPattern = regexp.MustCompile(`\d{10}-\d{2}-\d{6}`)
	feedTitlePattern = regexp.MustCompile(`^\s*4(?:/A)?\s*-\s*(.+?)\s*\((\d+)\)\s*\((\w+)\)\s*$`)
)

// listMarketFilings pages through the EDGAR "current filings" Atom feed for Form 4
func (c *Client) listMarketFilings(ctx context.Context, window models.FilingWindow) ([]models.FilingRef, error) {
	var refs []models.FilingRef
	index := make(map[string]int)

	for page := 0; page < marketMaxPages; page++ {
		url := fmt.Sprintf("%s/cgi-bin/browse-edgar?action=getcurrent&type=4&company=&dateb=&owner=include&start=%d&count=%d&output=atom",
			c.cfg.WWWBaseURL, page*marketPageSize, marketPageSize)

		body, err := c.get(ctx, url)
		if err != nil {
			if page > 0 {
				break
			}
			return nil, fmt.Errorf("failed to fetch current filings feed: %w", err)
		}

		feed, err := c.feedParser.ParseString(string(body))
		if err != nil {
			if page > 0 {
				break
			}
			return nil, fmt.Errorf("failed to parse current filings feed: %w", err)
		}

		reachedSince := false
		for _, item := range feed.Items {
			accession := accessionPattern.FindString(item.GUID + " " + item.Link)
			if accession == "" {
				continue
			}

			var filed models.Date
			if item.UpdatedParsed != nil {
				filed = models.DateOf(*item.UpdatedParsed)
			} else if item.PublishedParsed != nil {
				filed = models.DateOf(*item.PublishedParsed)
			}
			if !window.Since.IsZero() && !filed.IsZero() && filed.Before(window.Since) {
				reachedSince = true
				break
			}

			var company, cik string
			isIssuer := false
			if m := feedTitlePattern.FindStringSubmatch(item.Title); m != nil {
				isIssuer = strings.EqualFold(m[3], "Issuer")
				if isIssuer {
					company, cik = m[1], PadCIK(m[2])
				}
			}

			if i, seen := index[accession]; seen {
				if isIssuer && refs[i].CompanyName == "" {
					refs[i].CompanyName = company
					refs[i].CIK = cik
				}
				continue
			}
			if window.Limit > 0 && len(refs) >= window.Limit {
				continue
			}

			index[accession] = len(refs)
			refs = append(refs, models.FilingRef{
				URL:             item.Link,
				AccessionNumber: accession,
				FilingDate:      filed,
				CompanyName:     company,
				CIK:             cik,
			})
		}

		if reachedSince || len(feed.Items) < marketPageSize {
			break
		}
		if window.Limit > 0 && len(refs) >= window.Limit {
			break
		}
	}
	return refs, nil
}
