package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"idforge/pkg/platform/sentinel"
)

const maxLookupBody = 32 << 10

// HTTPLookup queries a JSON geo-IP endpoint. The template's "{ip}" placeholder
// is replaced with the escaped address; an empty address removes it so the
// endpoint reports on the requester.
func HTTPLookup(client *http.Client, template string) Lookup {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, ip string) (Info, error) {
		endpoint := template
		if ip == "" {
			endpoint = strings.ReplaceAll(endpoint, "{ip}/", "")
		}
		endpoint = strings.ReplaceAll(endpoint, "{ip}", url.PathEscape(ip))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Info{}, fmt.Errorf("build geo request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return Info{}, fmt.Errorf("geo lookup: %w: %w", sentinel.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return Info{}, fmt.Errorf("geo lookup: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
		if err != nil {
			return Info{}, fmt.Errorf("read geo response: %w", err)
		}
		return ParseInfo(body)
	}
}

// ParseInfo extracts ip and country from a lookup answer. Providers disagree
// on the country field name, so country_code and countryCode are accepted too.
func ParseInfo(body []byte) (Info, error) {
	if !gjson.ValidBytes(body) {
		return Info{}, fmt.Errorf("geo response is not JSON: %w", ErrMalformed)
	}
	res := gjson.GetManyBytes(body, "ip", "country", "country_code", "countryCode", "accurate")
	ip := res[0].String()
	country := ""
	for _, r := range res[1:4] {
		// some providers put the full name under "country"
		if v := r.String(); len(v) == 2 {
			country = v
			break
		}
	}
	if ip == "" || country == "" {
		return Info{}, ErrMalformed
	}
	// providers that do not report confidence are taken at their word
	accurate := true
	if res[4].Exists() {
		accurate = res[4].Bool()
	}
	return Info{IP: ip, Country: strings.ToUpper(country), Accurate: accurate}, nil
}
