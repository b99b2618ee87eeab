package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/logger"
)

// FilingProducer fetches a ticker's most recent annual report from EDGAR and
// splits it into labeled ITEM sections. The section extraction is a thin
// heuristic over flattened HTML text, not a contractual filing parser.
type FilingProducer struct {
	edgar    *edgarClient
	formType string
}

func NewFilingProducer(cfg Config) *FilingProducer {
	return &FilingProducer{
		edgar:    newEdgarClient(cfg.EdgarUserAgent, cfg.TimeoutSec),
		formType: "10-K",
	}
}

func (p *FilingProducer) Name() string { return "filing" }

var itemHeading = regexp.MustCompile(`(?i)\bITEM\s+(\d{1,2}[AB]?)\s*[.:]`)

const maxSectionChars = 20000

func (p *FilingProducer) Produce(ctx context.Context, ticker string) (models.Document, error) {
	cik, err := p.edgar.resolveCIK(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: filing %s: %v", models.ErrProducer, ticker, err)
	}

	accession, filingDate, primaryDoc, err := p.latestFiling(ctx, cik)
	if err != nil {
		return nil, fmt.Errorf("%w: filing %s: %v", models.ErrProducer, ticker, err)
	}

	docURL := fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s",
		strings.TrimLeft(cik, "0"),
		strings.ReplaceAll(accession, "-", ""),
		primaryDoc,
	)

	html, err := p.edgar.get(ctx, docURL)
	if err != nil {
		return nil, fmt.Errorf("%w: filing %s: %v", models.ErrProducer, ticker, err)
	}

	sections := extractItemSections(string(html))
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: filing %s: no ITEM sections found in %s",
			models.ErrProducer, ticker, primaryDoc)
	}

	logger.Info("Filing parsed",
		zap.String("ticker", ticker),
		zap.String("accession", accession),
		zap.Int("sections", len(sections)),
	)

	return models.FilingDocument{
		Ticker:          ticker,
		FormType:        p.formType,
		AccessionNumber: accession,
		FilingDate:      filingDate,
		Sections:        sections,
	}, nil
}

// latestFiling finds the newest filing of the configured form type in the
// company's recent submissions.
func (p *FilingProducer) latestFiling(ctx context.Context, cik string) (accession, filingDate, primaryDoc string, err error) {
	body, err := p.edgar.get(ctx,
		fmt.Sprintf("https://data.sec.gov/submissions/CIK%s.json", cik))
	if err != nil {
		return "", "", "", err
	}

	var submissions struct {
		Filings struct {
			Recent struct {
				Form            []string `json:"form"`
				AccessionNumber []string `json:"accessionNumber"`
				FilingDate      []string `json:"filingDate"`
				PrimaryDocument []string `json:"primaryDocument"`
			} `json:"recent"`
		} `json:"filings"`
	}
	if err := json.Unmarshal(body, &submissions); err != nil {
		return "", "", "", fmt.Errorf("failed to parse submissions: %w", err)
	}

	recent := submissions.Filings.Recent
	for i, form := range recent.Form {
		if form != p.formType {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) {
			break
		}
		date := ""
		if i < len(recent.FilingDate) {
			date = recent.FilingDate[i]
		}
		return recent.AccessionNumber[i], date, recent.PrimaryDocument[i], nil
	}

	return "", "", "", fmt.Errorf("no %s filing found", p.formType)
}

// extractItemSections flattens the filing HTML to text and slices it at ITEM
// headings. Text before the first heading (cover page, index) is dropped.
func extractItemSections(html string) []models.FilingSection {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	doc.Find("script, style, table").Remove()
	text := doc.Find("body").Text()
	text = regexp.MustCompile(`[ \t\x{00a0}]+`).ReplaceAllString(text, " ")
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")

	matches := itemHeading.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var sections []models.FilingSection
	seen := make(map[string]bool)

	for i, m := range matches {
		label := "ITEM " + strings.ToUpper(text[m[2]:m[3]])

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		body := strings.TrimSpace(text[m[1]:end])
		if len(body) < 200 {
			// Table-of-contents entries reference items with no body.
			continue
		}
		if len(body) > maxSectionChars {
			body = body[:maxSectionChars]
		}
		// The first occurrence with a real body wins; later ones are
		// usually cross-references.
		if seen[label] {
			continue
		}
		seen[label] = true

		sections = append(sections, models.FilingSection{Label: label, Text: body})
	}

	return sections
}
