package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"equitymetrics/internal/model"
	"equitymetrics/internal/store"
)

type seedFile struct {
	Instruments []seedInstrument `yaml:"instruments"`
}

type seedInstrument struct {
	ID       string      `yaml:"id"`
	Symbol   string      `yaml:"symbol"`
	Exchange string      `yaml:"exchange"`
	Name     string      `yaml:"name"`
	Country  string      `yaml:"country"`
	Currency string      `yaml:"currency"`
	Sector   string      `yaml:"sector"`
	Inactive bool        `yaml:"inactive"`
	Aliases  []seedAlias `yaml:"aliases"`
}

type seedAlias struct {
	Provider string `yaml:"provider"`
	Symbol   string `yaml:"symbol"`
	Exchange string `yaml:"exchange"`
}

// parseSeed decodes an instrument list. Aliases without an exchange inherit
// the instrument's so they match SymbolFor.
func parseSeed(b []byte, now time.Time) ([]*model.Instrument, error) {
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	out := make([]*model.Instrument, 0, len(f.Instruments))
	for i, s := range f.Instruments {
		if s.ID == "" || s.Symbol == "" {
			return nil, fmt.Errorf("seed instrument %d: id and symbol are required", i)
		}
		in := &model.Instrument{
			ID:           s.ID,
			Symbol:       s.Symbol,
			ExchangeCode: s.Exchange,
			Name:         s.Name,
			Country:      s.Country,
			Currency:     s.Currency,
			Sector:       s.Sector,
			Active:       !s.Inactive,
			CreatedAt:    now,
		}
		for _, a := range s.Aliases {
			ex := a.Exchange
			if ex == "" {
				ex = s.Exchange
			}
			in.Aliases = append(in.Aliases, model.Alias{Provider: a.Provider, Symbol: a.Symbol, ExchangeCode: ex})
		}
		out = append(out, in)
	}
	return out, nil
}

func seedInstruments(ctx context.Context, st store.InstrumentStore, path string, now time.Time) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed: %w", err)
	}
	ins, err := parseSeed(b, now)
	if err != nil {
		return 0, err
	}
	for _, in := range ins {
		if err := st.UpsertInstrument(ctx, in); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", in.ID, err)
		}
	}
	return len(ins), nil
}
