package model

import "time"

// Instrument is a tradable security identified by symbol and exchange.
type Instrument struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	ExchangeCode string    `json:"exchange_code,omitempty"`
	Name         string    `json:"name,omitempty"`
	Country      string    `json:"country,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	Sector       string    `json:"sector,omitempty"`
	Active       bool      `json:"active"`
	Aliases      []Alias   `json:"aliases,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Alias maps an instrument to the ticker a specific vendor expects.
// An empty ExchangeCode only matches instruments without an exchange code.
type Alias struct {
	Provider     string `json:"provider"`
	Symbol       string `json:"symbol"`
	ExchangeCode string `json:"exchange_code,omitempty"`
}

// SymbolFor returns the vendor-specific symbol for provider, falling back to
// the canonical symbol when no alias matches both provider and exchange code.
func (i *Instrument) SymbolFor(provider string) string {
	for _, a := range i.Aliases {
		if a.Provider == provider && a.Symbol != "" && a.ExchangeCode == i.ExchangeCode {
			return a.Symbol
		}
	}
	return i.Symbol
}
