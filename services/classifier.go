package services

import (
	"strings"

	"divar-ingest/models"
)

// ClassifyPropertyType guesses a property type from Persian title and
// description keywords. It is a best-effort post-processing heuristic run as
// a separate pass over already-persisted rows — the ingestion pipeline never
// calls it, so its guesses can't affect ingestion correctness.
func ClassifyPropertyType(title, description string) models.PropertyType {
	text := strings.ToLower(title + " " + description)

	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}

	if contains("ویلا", "ویلایی") {
		return models.TypeVilla
	}

	if contains("آپارتمان", "اپارتمان", "برج", "مجتمع مسکونی") {
		return models.TypeApartment
	}
	// "واحد" (unit) implies an apartment unless land wording is also present.
	if contains("واحد") && !contains("زمین") {
		return models.TypeApartment
	}

	if contains("زمین", "قطعه") {
		return models.TypeLand
	}
	// Garden plots count as land only when no dwelling keyword appeared.
	if contains("باغ", "باغچه") {
		return models.TypeLand
	}

	return models.TypeUnknown
}
