package types

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// HBDPrecision is the number of decimal places of an HBD amount.
const HBDPrecision = 3

// HiveTimeLayout is the timestamp layout Hive uses for transaction expiration (always UTC).
const HiveTimeLayout = "2006-01-02T15:04:05"

// DefaultRequirementsValidity is how long a freshly issued requirement stays valid.
const DefaultRequirementsValidity = 5 * time.Minute

var hbdPattern = regexp.MustCompile(`^(\d+\.\d{3})\s+HBD$`)

// ParseHBD parses an asset string such as "0.050 HBD". Exactly three decimal
// places are required.
func ParseHBD(asset string) (decimal.Decimal, error) {
	match := hbdPattern.FindStringSubmatch(asset)
	if match == nil {
		return decimal.Decimal{}, fmt.Errorf("invalid HBD asset string: %q", asset)
	}
	return decimal.NewFromString(match[1])
}

// FormatHBD formats an amount as an HBD asset string, e.g. "0.050 HBD".
func FormatHBD(amount decimal.Decimal) string {
	return amount.StringFixed(HBDPrecision) + " " + AssetHBD
}

// ParseHiveTime parses a Hive expiration timestamp. Hive omits the zone, the value is UTC.
func ParseHiveTime(value string) (time.Time, error) {
	return time.ParseInLocation(HiveTimeLayout, value, time.UTC)
}

// FormatHiveTime formats t the way Hive expects transaction expirations.
func FormatHiveTime(t time.Time) string {
	return t.UTC().Format(HiveTimeLayout)
}

// NewPaymentRequirements builds the requirements for a resource priced at amount
// and payable to payTo, valid for the given duration from now.
func NewPaymentRequirements(amount, payTo, resource string, validity time.Duration, now time.Time) PaymentRequirements {
	if validity <= 0 {
		validity = DefaultRequirementsValidity
	}
	return PaymentRequirements{
		X402Version:       X402Version1,
		Scheme:            SchemeExact,
		Network:           NetworkHiveMainnet,
		MaxAmountRequired: amount,
		Resource:          resource,
		PayTo:             payTo,
		ValidBefore:       now.Add(validity).UTC().Format(time.RFC3339Nano),
	}
}
