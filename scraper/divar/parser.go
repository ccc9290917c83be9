package divar

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"divar-ingest/models"
)

// Widget labels carrying the price rows. These are lifted into dedicated
// raw fields; every row, known or not, is also preserved as an attribute.
const (
	labelTotalPrice    = "قیمت کل"
	labelPricePerMeter = "قیمت هر متر"
)

// titleSelectors are tried in order; the markup drifts between page
// revisions.
var titleSelectors = []string{
	"h1.kt-page-title__title.kt-page-title__title--responsive-sized",
	"h1[class*='kt-page-title__title']",
	"div.kt-page-title h1",
	"h1",
}

var descriptionSelectors = []string{
	"div[class*='kt-description-row'] > div > p[class*='kt-description-row__text']",
	"p.kt-description-row__text--primary",
	"div.kt-base-row.kt-base-row--large.kt-description-row p",
}

// parseDetailHTML extracts title, description and gallery image URLs from
// the rendered page into raw. Each rule fails independently: a page without
// a gallery still yields its title, and vice versa.
func parseDetailHTML(html string, raw *models.RawFields) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}

	for _, sel := range titleSelectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			raw.Title = t
			break
		}
	}

	for _, sel := range descriptionSelectors {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > 0 {
			raw.Description = strings.Join(parts, "\n")
			break
		}
	}

	raw.ImageURLs = parseGallery(doc)
	return nil
}

// parseGallery collects CDN image URLs from the carousel in document order,
// preferring the largest srcset variant of each image over the plain src.
func parseGallery(doc *goquery.Document) []string {
	var urls []string
	seen := make(map[string]struct{})

	doc.Find("div[class*='kt-carousel'] picture img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if srcset, ok := img.Attr("srcset"); ok && srcset != "" {
			if best := lastSrcsetURL(srcset); best != "" {
				src = best
			}
		}
		if src == "" || !strings.Contains(src, "divarcdn") {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	})

	return urls
}

// lastSrcsetURL returns the URL of the final (largest) srcset candidate.
func lastSrcsetURL(srcset string) string {
	candidates := strings.Split(srcset, ",")
	for i := len(candidates) - 1; i >= 0; i-- {
		fields := strings.Fields(strings.TrimSpace(candidates[i]))
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// applyAPIData folds the structured payload into raw: every widget row
// becomes an attribute (unknown labels verbatim), price rows are lifted into
// the dedicated raw fields, and the SEO geo block supplies coordinates.
func applyAPIData(payload *apiResponse, raw *models.RawFields) {
	for _, section := range payload.Sections {
		for _, widget := range section.Widgets {
			applyWidget(widget, raw)
		}
	}

	geo := payload.SEO.PostSEOSchema.Geo
	if lat, err := geo.Latitude.Float64(); err == nil {
		if lon, err := geo.Longitude.Float64(); err == nil {
			raw.Latitude = &lat
			raw.Longitude = &lon
		}
	}
}

func applyWidget(widget apiWidget, raw *models.RawFields) {
	switch widget.WidgetType {
	case "GROUP_INFO_ROW":
		for _, item := range widget.Data.Items {
			raw.Attributes = append(raw.Attributes, models.RawAttribute{
				Label: item.Title,
				Value: item.Value,
			})
		}

	case "UNEXPANDABLE_ROW":
		raw.Attributes = append(raw.Attributes, models.RawAttribute{
			Label: widget.Data.Title,
			Value: widget.Data.Value,
		})
		switch widget.Data.Title {
		case labelTotalPrice:
			raw.PriceText = widget.Data.Value
		case labelPricePerMeter:
			raw.PricePerMeterText = widget.Data.Value
		}

	case "GROUP_FEATURE_ROW":
		for _, item := range widget.Data.Items {
			raw.Attributes = append(raw.Attributes, models.RawAttribute{
				Label:     item.Title,
				Available: item.Available,
				IconKey:   item.Icon.IconName,
			})
		}
		// Advanced attributes hide behind a modal page widget list.
		if widget.Data.Action.Type == "LOAD_MODAL_PAGE" {
			for _, modal := range widget.Data.Action.Payload.ModalPage.WidgetList {
				applyModalWidget(modal, raw)
			}
		}

	case "FEATURE_ROW":
		raw.Attributes = append(raw.Attributes, models.RawAttribute{
			Label:     widget.Data.Title,
			Available: true,
			IconKey:   widget.Data.Icon.IconName,
		})
	}
}

func applyModalWidget(widget apiWidget, raw *models.RawFields) {
	switch widget.WidgetType {
	case "UNEXPANDABLE_ROW":
		raw.Attributes = append(raw.Attributes, models.RawAttribute{
			Label: widget.Data.Title,
			Value: widget.Data.Value,
		})
	case "FEATURE_ROW":
		// Features listed in the modal are present by definition.
		raw.Attributes = append(raw.Attributes, models.RawAttribute{
			Label:     widget.Data.Title,
			Available: true,
			IconKey:   widget.Data.Icon.IconName,
		})
	}
}
