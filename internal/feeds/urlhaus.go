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
	urlhausSourceName = "URLHaus"
	urlhausRecentURL  = "https://urlhaus-api.abuse.ch/v1/urls/recent/"
)

type urlhausEntry struct {
	URL       string   `json:"url"`
	URLStatus string   `json:"url_status"`
	DateAdded string   `json:"date_added"`
	Threat    string   `json:"threat"`
	Tags      []string `json:"tags"`
	Reference string   `json:"urlhaus_reference"`
	Host      string   `json:"host"`
}

// URLHaus collects recently reported malicious URLs. No credential needed.
type URLHaus struct {
	client *fetch.Client
	url    string
	now    func() time.Time
}

func NewURLHaus(client *fetch.Client) *URLHaus {
	return &URLHaus{client: client, url: urlhausRecentURL, now: time.Now}
}

func (c *URLHaus) Name() string { return "urlhaus" }

func (c *URLHaus) Collect(ctx context.Context) ([]ioc.IOC, error) {
	body, err := c.client.Get(ctx, c.url, nil, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		URLs []urlhausEntry `json:"urls"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse URLHaus response: %w", err)
	}
	return normalizeURLHaus(resp.URLs, c.now()), nil
}

func normalizeURLHaus(entries []urlhausEntry, now time.Time) []ioc.IOC {
	var out []ioc.IOC
	for _, item := range entries {
		if item.URL == "" {
			continue
		}
		date, ts := deriveWhen(item.DateAdded, "", now)
		tags := item.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, ioc.IOC{
			Date:        date,
			Time:        ts,
			Source:      urlhausSourceName,
			Type:        "URL",
			Value:       item.URL,
			Description: item.Threat,
			Tags:        tags,
			Mitigation:  []string{"Block URL", "Monitor web traffic"},
			Extra: map[string]any{
				"url_status": item.URLStatus,
				"reference":  item.Reference,
				"host":       item.Host,
			},
		})
	}
	return out
}
