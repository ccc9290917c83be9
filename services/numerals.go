package services

import (
	"regexp"
	"strconv"
	"strings"
)

// digitReplacer translates Persian and Arabic-Indic digits to Latin.
var digitReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// unitReplacer strips the unit words and separators that commonly surround
// numbers on listing pages.
var unitReplacer = strings.NewReplacer(
	"مترمربع", "",
	"متر", "",
	"تومان", "",
	"٬", "",
	",", "",
)

var nonNumeric = regexp.MustCompile(`[^\d.-]+`)

// ParseLocalizedNumber extracts an integer from localized numeral text
// (Persian/Arabic digits, unit words, thousand separators). A missing or
// non-numeric value yields (0, false) — never an error, since absent numbers
// are valid on sparse listings.
func ParseLocalizedNumber(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}

	cleaned := digitReplacer.Replace(unitReplacer.Replace(s))
	cleaned = nonNumeric.ReplaceAllString(strings.TrimSpace(cleaned), "")
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// ParseLocalizedNumberPtr is ParseLocalizedNumber returning nil on absence,
// for nullable record fields.
func ParseLocalizedNumberPtr(s string) *int64 {
	n, ok := ParseLocalizedNumber(s)
	if !ok {
		return nil
	}
	return &n
}
