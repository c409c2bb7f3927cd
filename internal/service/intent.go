package service

import (
	"regexp"
	"strconv"
	"strings"
)

// Exact-match vocabularies, compared after Normalize.
var (
	greetingWords = wordSet("salam", "slm", "bonjour", "salut", "cc", "saha", "hey", "hi")
	yesWords      = wordSet("oui", "yes", "yeah", "y", "ok", "d'accord", "dak", "wah", "ايه", "نعم")
	noWords       = wordSet("non", "no", "nn", "la", "machi", "لا", "nop")
	cancelWords   = wordSet("annuler", "cancel", "stop", "khrej", "n7ab ncancel", "nheb ncancel", "إلغاء", "الغاء")
)

// Substring vocabularies for free text.
var (
	priceMarkers = []string{
		"prix", "combien", "price", "how much", "chhal", "bchhal", "b9adach", "9adach",
		"بشحال", "شحال", "قداش", "السعر", "سعر",
	}
	purchaseMarkers = []string{
		"nheb", "n7eb", "n7ab", "nhab", "bghit", "je veux", "commande", "commander", "acheter",
		"buy", "order", "want", "خليلي", "بغيت", "نحب", "نشري",
	}
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Normalize обрезает пробелы и приводит к нижнему регистру
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func inSet(set map[string]struct{}, text string) bool {
	_, ok := set[Normalize(text)]
	return ok
}

func IsGreeting(text string) bool { return inSet(greetingWords, text) }
func IsYes(text string) bool      { return inSet(yesWords, text) }
func IsNo(text string) bool       { return inSet(noWords, text) }
func IsCancel(text string) bool   { return inSet(cancelWords, text) }

func containsAny(text string, markers []string) bool {
	t := Normalize(text)
	for _, m := range markers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

func HasPriceIntent(text string) bool    { return containsAny(text, priceMarkers) }
func HasPurchaseIntent(text string) bool { return containsAny(text, purchaseMarkers) }

// a digit run not preceded by another digit or a minus sign
var quantityRe = regexp.MustCompile(`(?:^|[^0-9-])([0-9]+)`)

var easternDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4", "٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4", "۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
)

// ParseQuantity returns the first positive integer in text. "x2" gives 2,
// while "0", "-5" and text without digits give false.
func ParseQuantity(text string) (int64, bool) {
	t := easternDigits.Replace(Normalize(text))
	m := quantityRe.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}
	q, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || q <= 0 {
		return 0, false
	}
	return q, true
}
