// internal/geocode/client.go
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// ErrNoPlace is returned when the service has no address for a coordinate.
var ErrNoPlace = errors.New("no place found")

// Client resolves coordinates against a Nominatim-compatible reverse endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// New creates a new geocoding client.
func New(baseURL, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type reverseResponse struct {
	Error       string `json:"error"`
	DisplayName string `json:"display_name"`
	Address     struct {
		Village string `json:"village"`
		Town    string `json:"town"`
		City    string `json:"city"`
		County  string `json:"county"`
		State   string `json:"state"`
	} `json:"address"`
}

// Reverse returns the place name around coord.
func (c *Client) Reverse(ctx context.Context, coord core.Coordinate) (core.Location, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(coord.Lng, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Location{}, fmt.Errorf("reverse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Location{}, fmt.Errorf("reverse returned status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return core.Location{}, fmt.Errorf("failed to decode reverse response: %w", err)
	}
	if body.Error != "" {
		return core.Location{}, fmt.Errorf("%w: %s", ErrNoPlace, body.Error)
	}

	loc := core.Location{
		Name:   firstNonEmpty(body.Address.Village, body.Address.Town, body.Address.City, displayHead(body.DisplayName)),
		Region: firstNonEmpty(body.Address.State, body.Address.County),
	}
	if loc.Name == "" {
		return core.Location{}, ErrNoPlace
	}
	return loc, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// displayHead returns the first component of a comma separated display name.
func displayHead(s string) string {
	head, _, _ := strings.Cut(s, ",")
	return head
}
