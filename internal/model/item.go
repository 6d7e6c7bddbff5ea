package model

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxNameLength is the longest item name the auction form accepts.
const MaxNameLength = 65

// Condition is the item condition as shown on the auction form.
type Condition int

const (
	ConditionNew Condition = iota
	ConditionLikeNew
	ConditionGood
	ConditionFair
	ConditionPoor
	ConditionBad
)

var conditionLabels = map[Condition]string{
	ConditionNew:     "新品、未使用",
	ConditionLikeNew: "未使用に近い",
	ConditionGood:    "目立った傷や汚れなし",
	ConditionFair:    "やや傷や汚れあり",
	ConditionPoor:    "傷や汚れあり",
	ConditionBad:     "全体的に状態が悪い",
}

// Label returns the form label for the condition.
func (c Condition) Label() string {
	return conditionLabels[c]
}

// ConditionFromLabel maps a form label back to a Condition. Unknown labels
// fall back to ConditionGood, matching how request mails are interpreted.
func ConditionFromLabel(label string) Condition {
	for c, l := range conditionLabels {
		if l == label {
			return c
		}
	}
	return ConditionGood
}

// Carrier is the shipping carrier selectable on the auction form.
type Carrier int

const (
	CarrierSagawa Carrier = iota
	CarrierYamato
	CarrierYupack
	CarrierNekopos
)

var carrierLabels = map[Carrier]string{
	CarrierSagawa:  "佐川急便",
	CarrierYamato:  "ヤマト運輸",
	CarrierYupack:  "ゆうパック",
	CarrierNekopos: "ネコポス",
}

// Label returns the form label for the carrier.
func (c Carrier) Label() string {
	return carrierLabels[c]
}

// CarrierFromLabel maps a form label back to a Carrier, defaulting to
// CarrierSagawa for unknown labels.
func CarrierFromLabel(label string) Carrier {
	for c, l := range carrierLabels {
		if l == label {
			return c
		}
	}
	return CarrierSagawa
}

// BuyerInfo holds the recipient data fetched from a transaction detail page.
// Fields may be empty until fetched; the shipping workflow enforces which ones
// are required before registration.
type BuyerInfo struct {
	Name       string
	PostalCode string
	Address    string
	Phone      string
}

// ListingItem is one piece of merchandise moving through the pipeline. It is
// created either from a parsed request mail (listing) or from a discovery
// query against the remote site (relisting, shipping), and is discarded when
// the workflow iteration completes.
type ListingItem struct {
	Name         string
	Price        int // minor currency unit
	Description  string
	Category     string
	Condition    Condition
	Carrier      Carrier
	ShippingCost int // 0 = seller pays
	DurationDays int // auction duration, 1-7
	ImagePaths   []string
	MessageID    string // source mail, empty for discovered items
	ListingID    string // assigned after submission
	Buyer        BuyerInfo
}

// WithListingID returns a copy of the item with the assigned identifier set.
// Identifier assignment is modeled as a snapshot transition rather than
// in-place mutation so later steps (notification, ledger) see a stable value.
func (i ListingItem) WithListingID(id string) ListingItem {
	i.ListingID = id
	return i
}

// Validate checks the invariants that must hold before any submission is
// attempted.
func (i ListingItem) Validate() error {
	if i.Name == "" {
		return errors.New("item name is missing")
	}
	if utf8.RuneCountInString(i.Name) > MaxNameLength {
		return fmt.Errorf("item name exceeds %d characters", MaxNameLength)
	}
	if i.Price <= 0 {
		return errors.New("item price must be a positive integer")
	}
	if i.DurationDays < 1 || i.DurationDays > 7 {
		return fmt.Errorf("auction duration must be 1-7 days, got %d", i.DurationDays)
	}
	return nil
}
