package mail

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"relister/internal/model"
)

// Request mails use bracketed tags, one per line, each value running until
// the next tag or end of body:
//
//	【商品名】ヴィンテージデニムジャケット
//	【価格】3500
//	【説明】古着です。
//
// Only 商品名 and 価格 are mandatory; everything else falls back to a
// default. Values may span multiple lines.
var tagPattern = regexp.MustCompile(`(?s)【([^】]+)】(.*?)(?:【|\z)`)

const defaultDurationDays = 7

// ParseListingRequest builds an item from the tagged body of a request mail.
// The item still needs Validate before submission; parsing never fails, it
// only produces an item that may be invalid.
func ParseListingRequest(msg Message) model.ListingItem {
	item := model.ListingItem{
		MessageID:    msg.ID,
		Condition:    model.ConditionGood,
		Carrier:      model.CarrierSagawa,
		DurationDays: defaultDurationDays,
	}

	for _, field := range parseTags(msg.Body) {
		value := field.value
		switch field.tag {
		case "商品名":
			item.Name = truncateRunes(value, model.MaxNameLength)
		case "価格":
			item.Price = parseAmount(value)
		case "説明":
			item.Description = value
		case "カテゴリ":
			item.Category = value
		case "状態":
			item.Condition = model.ConditionFromLabel(value)
		case "配送":
			item.Carrier = model.CarrierFromLabel(value)
		case "送料":
			item.ShippingCost = parseAmount(value)
		case "期間":
			if d, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && d >= 1 && d <= 7 {
				item.DurationDays = d
			}
		}
	}
	return item
}

type taggedField struct {
	tag   string
	value string
}

func parseTags(body string) []taggedField {
	var fields []taggedField
	rest := body
	for {
		m := tagPattern.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		tag := rest[m[2]:m[3]]
		value := strings.TrimSpace(rest[m[4]:m[5]])
		fields = append(fields, taggedField{tag: tag, value: value})
		// The value group ends just before the next opening bracket, so
		// resuming there keeps that bracket for the next match.
		next := m[5]
		if next >= len(rest) {
			break
		}
		rest = rest[next:]
	}
	return fields
}

// parseAmount reads a price-like value, tolerating thousands separators and
// a trailing 円. Returns 0 for anything unreadable.
func parseAmount(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "円")
	s = strings.ReplaceAll(s, ",", "")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// ValidateListingRequest wraps item validation with the source mail subject
// for log readability.
func ValidateListingRequest(msg Message, item model.ListingItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("request %q is not listable: %w", msg.Subject, err)
	}
	return nil
}
