// Package api implements the client for the remote hole service.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wintech-vn/drilltrack/internal/model"
)

// timestampLayout is the wire format for submission timestamps: UTC, seconds
// resolution, literal Z suffix.
const timestampLayout = "2006-01-02T15:04:05Z"

// Client handles communication with the hole API. The base URL already
// includes the /api prefix, e.g. https://nomin.example.com/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// holeListResponse is the hole-listing envelope.
type holeListResponse struct {
	Success bool         `json:"success"`
	Holes   []model.Hole `json:"holes"`
}

// holeResponse is the single-hole envelope.
type holeResponse struct {
	Success bool       `json:"success"`
	Hole    model.Hole `json:"hole"`
}

// statusResponse is the generic write-acknowledgement envelope.
type statusResponse struct {
	Success bool `json:"success"`
}

// GetHoles fetches all holes of a project.
func (c *Client) GetHoles(projectID string) ([]model.Hole, error) {
	var out holeListResponse
	endpoint := fmt.Sprintf("/projects/%s/holes", url.PathEscape(projectID))
	if err := c.do(http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("hole listing failed: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("hole listing rejected by server")
	}
	return out.Holes, nil
}

// GetHole fetches one hole by its identifier.
func (c *Client) GetHole(projectID, holeID string) (*model.Hole, error) {
	var out holeResponse
	endpoint := fmt.Sprintf("/projects/%s/holes/%s", url.PathEscape(projectID), url.PathEscape(holeID))
	if err := c.do(http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("hole detail failed: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("hole detail rejected by server")
	}
	return &out.Hole, nil
}

// FindHoleByExternalID scans the project's hole list for a hole id string
// such as "HK01". Returns nil when no hole matches.
func (c *Client) FindHoleByExternalID(projectID, externalID string) (*model.Hole, error) {
	holes, err := c.GetHoles(projectID)
	if err != nil {
		return nil, err
	}
	for i := range holes {
		if holes[i].ExternalID == externalID {
			return &holes[i], nil
		}
	}
	return nil, nil
}

// drillingSpeedRequest is the telemetry submission body.
type drillingSpeedRequest struct {
	Speed     float64 `json:"speed"`
	Depth     float64 `json:"depth"`
	Timestamp string  `json:"timestamp"`
	SensorID  string  `json:"sensor_id,omitempty"`
}

// PostDrillingSpeed submits one drilling telemetry sample for a hole.
func (c *Client) PostDrillingSpeed(projectID, holeID string, speed, depth float64, capturedAt time.Time, sensorID string) error {
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	body := drillingSpeedRequest{
		Speed:     speed,
		Depth:     depth,
		Timestamp: capturedAt.UTC().Format(timestampLayout),
		SensorID:  sensorID,
	}

	var out statusResponse
	endpoint := fmt.Sprintf("/projects/%s/holes/%s/drilling-speed",
		url.PathEscape(projectID), url.PathEscape(holeID))
	if err := c.do(http.MethodPost, endpoint, body, &out); err != nil {
		return fmt.Errorf("drilling-speed submission failed: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("drilling-speed submission rejected by server")
	}
	return nil
}

// UpdateHoleGPS patches the surveyed GPS location of a hole.
func (c *Client) UpdateHoleGPS(projectID, holeID string, lat, lon float64, elevation *float64) error {
	body := map[string]float64{"lat": lat, "lon": lon}
	if elevation != nil {
		body["elevation"] = *elevation
	}

	var out statusResponse
	endpoint := fmt.Sprintf("/projects/%s/holes/%s/gps",
		url.PathEscape(projectID), url.PathEscape(holeID))
	if err := c.do(http.MethodPatch, endpoint, body, &out); err != nil {
		return fmt.Errorf("hole GPS update failed: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("hole GPS update rejected by server")
	}
	return nil
}

// UpdateHoleDepth updates the recorded depth of a hole.
func (c *Client) UpdateHoleDepth(projectID, holeID string, depth float64) error {
	var out statusResponse
	endpoint := fmt.Sprintf("/projects/%s/holes/%s",
		url.PathEscape(projectID), url.PathEscape(holeID))
	if err := c.do(http.MethodPut, endpoint, map[string]float64{"depth": depth}, &out); err != nil {
		return fmt.Errorf("hole depth update failed: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("hole depth update rejected by server")
	}
	return nil
}

// Healthcheck checks whether the API server is reachable. Any HTTP response
// counts as alive; only transport errors fail.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// do performs one JSON request/response round trip. A non-2xx status is an
// error; the body is decoded into out when it is non-nil.
func (c *Client) do(method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
