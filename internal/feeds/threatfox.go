package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inteltool/inteltool/internal/fetch"
	"github.com/inteltool/inteltool/internal/ioc"
)

const (
	threatfoxSourceName = "ThreatFox"
	threatfoxAPIURL     = "https://threatfox-api.abuse.ch/api/v1/"
	threatfoxLimit      = 50
)

type threatfoxEntry struct {
	IOC            string   `json:"ioc"`
	IOCType        string   `json:"ioc_type"`
	ThreatTypeDesc string   `json:"threat_type_desc"`
	Tags           []string `json:"tags"`
	FirstSeen      string   `json:"first_seen"`
	LastSeen       string   `json:"last_seen"`
}

// ThreatFox collects recent IOCs via the abuse.ch ThreatFox query API.
// This is the one feed that queries over POST.
type ThreatFox struct {
	client *fetch.Client
	url    string
	now    func() time.Time
}

func NewThreatFox(client *fetch.Client) *ThreatFox {
	return &ThreatFox{client: client, url: threatfoxAPIURL, now: time.Now}
}

func (c *ThreatFox) Name() string { return "threatfox" }

func (c *ThreatFox) Collect(ctx context.Context) ([]ioc.IOC, error) {
	payload := map[string]any{"query": "get_iocs", "limit": threatfoxLimit}
	body, err := c.client.PostJSON(ctx, c.url, payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []threatfoxEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse ThreatFox response: %w", err)
	}
	return normalizeThreatFox(resp.Data, c.now()), nil
}

func normalizeThreatFox(entries []threatfoxEntry, now time.Time) []ioc.IOC {
	var out []ioc.IOC
	for _, item := range entries {
		if item.IOC == "" || item.IOCType == "" {
			continue
		}
		date, ts := deriveWhen(item.FirstSeen, item.LastSeen, now)
		tags := item.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, ioc.IOC{
			Date:        date,
			Time:        ts,
			Source:      threatfoxSourceName,
			Type:        item.IOCType,
			Value:       item.IOC,
			Description: item.ThreatTypeDesc,
			Tags:        tags,
			Mitigation:  []string{},
			Extra: map[string]any{
				"first_seen": item.FirstSeen,
			},
		})
	}
	return out
}
