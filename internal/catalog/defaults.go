package catalog

import "github.com/shopspring/decimal"

// SeedDefaults lists the default instrument set, used when no catalog
// file exists yet. Already-listed symbols are left untouched.
func (c *Catalog) SeedDefaults() {
	defaults := []struct {
		symbol, name, price string
	}{
		{"AAPL", "Apple Inc.", "175.50"},
		{"GOOGL", "Alphabet Inc.", "140.25"},
		{"MSFT", "Microsoft Corporation", "378.90"},
		{"AMZN", "Amazon.com Inc.", "155.75"},
		{"JPM", "JPMorgan Chase & Co.", "156.80"},
		{"BAC", "Bank of America Corp.", "34.50"},
		{"TSLA", "Tesla Inc.", "242.15"},
		{"NVDA", "NVIDIA Corporation", "495.25"},
		{"DIS", "The Walt Disney Company", "92.40"},
		{"NKE", "Nike Inc.", "108.75"},
	}
	for _, d := range defaults {
		// Add rejects duplicates; existing listings win.
		c.Add(d.symbol, d.name, decimal.RequireFromString(d.price))
	}
}
