package models

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultPrepMinutes is used for menu items the timing table does not know.
const DefaultPrepMinutes = 5

// TimingEntry is one row of the preparation timing table.
type TimingEntry struct {
	Key     string `json:"name"`
	Minutes int    `json:"minutes"`
}

// MenuTiming maps menu item names to preparation minutes.
// Entry order is significant: fuzzy matching takes the first hit.
type MenuTiming struct {
	entries []TimingEntry
}

// NewMenuTiming copies entries into an immutable table.
func NewMenuTiming(entries []TimingEntry) (*MenuTiming, error) {
	out := make([]TimingEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return nil, fmt.Errorf("timing entry with empty name")
		}
		if e.Minutes < 0 {
			return nil, fmt.Errorf("timing entry %q has negative minutes", e.Key)
		}
		out = append(out, e)
	}
	return &MenuTiming{entries: out}, nil
}

// DefaultMenuTiming returns the canteen's preparation table.
func DefaultMenuTiming() *MenuTiming {
	return &MenuTiming{entries: []TimingEntry{
		{"Cireng", 5},
		{"Seblak", 15},
		{"Risol", 5},
		{"Mie Ayam", 15},
		{"Gorengan", 5},
		{"Wonton", 8},
		{"Mie instan", 7},
		{"Pop mie", 5},
		{"Soto", 6},
		{"Bakso", 10},
		{"Nutrisari", 3},
		{"Pop ice", 5},
		{"Chocolatos", 4},
		{"Milo", 4},
		{"Teh", 3},
		{"Kopi", 4},
		{"Teh Tarik", 4},
		{"Le minerale", 3},
		{"Capcin", 5},
		{"Teajus", 5},
	}}
}

// LoadMenuTiming reads a JSON array of {"name","minutes"} rows.
func LoadMenuTiming(path string) (*MenuTiming, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timing file: %w", err)
	}
	var entries []TimingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse timing file: %w", err)
	}
	return NewMenuTiming(entries)
}

// MinutesFor returns the preparation minutes for one unit of itemName.
// Exact case-insensitive match wins, then the first key contained in the
// name, then DefaultPrepMinutes.
func (t *MenuTiming) MinutesFor(itemName string) int {
	if t == nil {
		return DefaultPrepMinutes
	}
	name := strings.ToLower(strings.TrimSpace(itemName))
	for _, e := range t.entries {
		if strings.ToLower(e.Key) == name {
			return e.Minutes
		}
	}
	if name == "" {
		return DefaultPrepMinutes
	}
	for _, e := range t.entries {
		if strings.Contains(name, strings.ToLower(e.Key)) {
			return e.Minutes
		}
	}
	return DefaultPrepMinutes
}

// Entries returns a copy of the table in definition order.
func (t *MenuTiming) Entries() []TimingEntry {
	out := make([]TimingEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
