package crypto

import (
	"fmt"
	"regexp"
	"strings"
)

// Quote currencies checked in order when splitting a symbol. USD is last
// so that USDT wins for "BTCUSDT".
var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB", "USD"}

// quoteAliases maps fiat quotes to the stablecoin exchanges list instead.
var quoteAliases = map[string]string{"USD": "USDT"}

var validCryptoSymbol = regexp.MustCompile(`^[A-Za-z0-9]{2,20}$`)

// NormalizeSymbol converts various input formats to exchange format (e.g., BTCUSDT)
// Input formats: "BTC", "btc", "BTC-USD", "BTC/USDT", "btcusdt"
// Output: "BTCUSDT"
func NormalizeSymbol(input string, defaultQuote string) string {
	if input == "" {
		return ""
	}

	s := strings.ToUpper(input)
	if i := strings.IndexAny(s, "-/_"); i > 0 {
		base, quote := s[:i], s[i+1:]
		return base + alias(quote)
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote) + alias(quote)
		}
	}

	// No quote currency found, append default
	return s + alias(strings.ToUpper(defaultQuote))
}

func alias(quote string) string {
	if a, ok := quoteAliases[quote]; ok {
		return a
	}
	return quote
}

// ParseSymbol extracts base and quote from a normalized symbol
// "BTCUSDT" -> ("BTC", "USDT")
func ParseSymbol(symbol string) (base, quote string) {
	s := strings.ToUpper(symbol)

	for _, q := range quoteCurrencies {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q
		}
	}

	// Fallback: assume last 4 chars are quote (USDT, BUSD, etc.)
	if len(s) > 4 {
		return s[:len(s)-4], s[len(s)-4:]
	}

	return s, ""
}

// ValidateCryptoSymbol checks if a symbol has valid format
func ValidateCryptoSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 30 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}

	s := strings.NewReplacer("-", "", "/", "", "_", "").Replace(symbol)
	if !validCryptoSymbol.MatchString(s) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}
