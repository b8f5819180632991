package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/inteltool/inteltool/internal/fetch"
	"github.com/inteltool/inteltool/internal/ioc"
)

const (
	otxSourceName = "OTX"
	otxPulsesURL  = "https://otx.alienvault.com/api/v1/pulses/subscribed"
	otxPulseLimit = 50
)

type otxPulse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Created    string   `json:"created"`
	Modified   string   `json:"modified"`
	Tags       []string `json:"tags"`
	Indicators []struct {
		Type        string `json:"type"`
		Indicator   string `json:"indicator"`
		Description string `json:"description"`
		Created     string `json:"created"`
	} `json:"indicators"`
}

// OTX collects indicators from AlienVault OTX subscribed pulses.
type OTX struct {
	client *fetch.Client
	apiKey string
	url    string
	now    func() time.Time
}

func NewOTX(client *fetch.Client, apiKey string) *OTX {
	return &OTX{client: client, apiKey: apiKey, url: otxPulsesURL, now: time.Now}
}

func (c *OTX) Name() string { return "otx" }

func (c *OTX) Collect(ctx context.Context) ([]ioc.IOC, error) {
	if c.apiKey == "" {
		return nil, &MissingCredentialError{Feed: otxSourceName}
	}
	params := url.Values{}
	params.Set("limit", fmt.Sprint(otxPulseLimit))
	body, err := c.client.Get(ctx, c.url, map[string]string{"X-OTX-API-KEY": c.apiKey}, params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []otxPulse `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse OTX pulses: %w", err)
	}
	return normalizeOTX(resp.Results, c.now()), nil
}

// normalizeOTX flattens pulses into one record per indicator. Indicators
// without a value are skipped; the pulse id and name go into extra.
func normalizeOTX(pulses []otxPulse, now time.Time) []ioc.IOC {
	var out []ioc.IOC
	for _, pulse := range pulses {
		for _, ind := range pulse.Indicators {
			if ind.Indicator == "" || ind.Type == "" {
				continue
			}
			created := ind.Created
			if created == "" {
				created = pulse.Created
			}
			date, ts := deriveWhen(created, pulse.Modified, now)
			description := ind.Description
			if description == "" {
				description = pulse.Name
			}
			tags := pulse.Tags
			if tags == nil {
				tags = []string{}
			}
			out = append(out, ioc.IOC{
				Date:        date,
				Time:        ts,
				Source:      otxSourceName,
				Type:        ind.Type,
				Value:       ind.Indicator,
				Description: description,
				Tags:        tags,
				Mitigation:  []string{},
				Extra: map[string]any{
					"pulse_id":   pulse.ID,
					"pulse_name": pulse.Name,
				},
			})
		}
	}
	return out
}
