package ioc

import "encoding/json"

// IOC is the canonical record produced by every feed normalizer.
// Feed-specific attributes live in Extra and are flattened into the JSON
// projection, so the ledger file stays a flat array of objects regardless
// of which feed a record came from.
type IOC struct {
	Date        string
	Time        string
	Source      string
	Type        string
	Value       string
	Description string
	Tags        []string
	Mitigation  []string
	Extra       map[string]any
}

// Key identifies a record for ledger deduplication. Two records with the
// same value but different types are distinct entities.
type Key struct {
	Value string
	Type  string
}

// Key returns the ledger uniqueness key for the record.
func (i IOC) Key() Key {
	return Key{Value: i.Value, Type: i.Type}
}

// fixed JSON field names; Extra keys must not collide with these.
var fixedFields = map[string]bool{
	"date":        true,
	"time":        true,
	"source":      true,
	"ioc_type":    true,
	"ioc_value":   true,
	"description": true,
	"tags":        true,
	"mitigation":  true,
}

// MarshalJSON flattens Extra into the top-level object.
func (i IOC) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(fixedFields)+len(i.Extra))
	m["date"] = i.Date
	m["time"] = i.Time
	m["source"] = i.Source
	m["ioc_type"] = i.Type
	m["ioc_value"] = i.Value
	m["description"] = i.Description
	m["tags"] = emptyIfNil(i.Tags)
	m["mitigation"] = emptyIfNil(i.Mitigation)
	for k, v := range i.Extra {
		m[k] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON gathers unknown keys back into Extra.
func (i *IOC) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	i.Date = asString(m["date"])
	i.Time = asString(m["time"])
	i.Source = asString(m["source"])
	i.Type = asString(m["ioc_type"])
	i.Value = asString(m["ioc_value"])
	i.Description = asString(m["description"])
	i.Tags = asStrings(m["tags"])
	i.Mitigation = asStrings(m["mitigation"])
	i.Extra = nil
	for k, v := range m {
		if fixedFields[k] {
			continue
		}
		if i.Extra == nil {
			i.Extra = make(map[string]any)
		}
		i.Extra[k] = v
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ValueCount is one entry of a report's top-values ranking.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Report is the ephemeral result of one correlation run.
type Report struct {
	Date         string              `json:"date"`
	TotalIOCs    int                 `json:"total_iocs"`
	BySource     map[string]int      `json:"by_source"`
	ByType       map[string]int      `json:"by_type"`
	Duplicates   map[string][]string `json:"duplicates"`
	TopValues    []ValueCount        `json:"top_values"`
	Coverage     map[string]float64  `json:"coverage"`
	MissingFeeds []string            `json:"missing_feeds"`
	Insights     []string            `json:"insights"`
	IOCs         []IOC               `json:"iocs"`
}
