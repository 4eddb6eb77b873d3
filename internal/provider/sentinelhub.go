package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cropsight/cropsight/internal/zone"
	"go.uber.org/zap"
)

// boxHalfWidthDeg is half the side of the sampling box around a zone
// point, in degrees. Roughly a 2 km box at mid latitudes.
const boxHalfWidthDeg = 0.01

// ndviEvalscript computes the normalized difference of NIR and red with
// the scene classification mask applied, averaged over the box.
const ndviEvalscript = `//VERSION=3
function setup() {
  return {
    input: [{bands: ["B04", "B08", "dataMask"]}],
    output: [
      {id: "default", bands: 1},
      {id: "dataMask", bands: 1}
    ]
  };
}
function evaluatePixel(s) {
  let ndvi = (s.B08 - s.B04) / (s.B08 + s.B04);
  return {default: [ndvi], dataMask: [s.dataMask]};
}`

// SentinelHubConfig holds the credentials and endpoints for the
// Sentinel Hub statistics API.
type SentinelHubConfig struct {
	TokenURL      string        `mapstructure:"token_url"`
	APIURL        string        `mapstructure:"api_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	MaxCloudCover int           `mapstructure:"max_cloud_cover"`
	Timeout       time.Duration `mapstructure:"-"`
}

// SentinelHub fetches the mean NDVI over a small box around each zone
// point from the Sentinel Hub statistics API. OAuth2 client-credentials
// tokens are cached until shortly before expiry.
type SentinelHub struct {
	cfg    SentinelHubConfig
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewSentinelHub validates the config and returns a client. Missing
// credentials are configuration-fatal when this provider is selected.
func NewSentinelHub(cfg SentinelHubConfig, logger *zap.Logger) (*SentinelHub, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("sentinelhub provider: client_id and client_secret are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SentinelHub{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func (s *SentinelHub) Name() string { return "sentinelhub" }

// Fetch returns the mean index over the zone box for the given day.
func (s *SentinelHub) Fetch(ctx context.Context, z zone.Zone, day time.Time) (float64, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("sentinelhub token: %w", err)
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	reqBody := statsRequest{}
	reqBody.Input.Bounds.BBox = [4]float64{
		z.Lon - boxHalfWidthDeg,
		z.Lat - boxHalfWidthDeg,
		z.Lon + boxHalfWidthDeg,
		z.Lat + boxHalfWidthDeg,
	}
	reqBody.Input.Bounds.Properties.CRS = "http://www.opengis.net/def/crs/EPSG/0/4326"
	reqBody.Input.Data = []statsData{{
		Type: "sentinel-2-l2a",
		DataFilter: statsDataFilter{
			MaxCloudCoverage: s.cfg.MaxCloudCover,
		},
	}}
	reqBody.Aggregation.TimeRange.From = from.Format(time.RFC3339)
	reqBody.Aggregation.TimeRange.To = to.Format(time.RFC3339)
	reqBody.Aggregation.AggregationInterval.Of = "P1D"
	reqBody.Aggregation.Evalscript = ndviEvalscript

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("sentinelhub request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("sentinelhub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sentinelhub fetch %s: %w: %v", z.Name, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("sentinelhub fetch %s: status %d: %s: %w",
			z.Name, resp.StatusCode, strings.TrimSpace(string(body)), ErrUnavailable)
	}

	var out statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("sentinelhub decode %s: %w", z.Name, err)
	}

	return extractMean(out, z.Name)
}

// extractMean pulls the mean of the default band out of a statistics
// response. Empty intervals or all-masked pixels map to ErrUnavailable.
func extractMean(out statsResponse, zoneName string) (float64, error) {
	if len(out.Data) == 0 {
		return 0, fmt.Errorf("sentinelhub %s: no intervals: %w", zoneName, ErrUnavailable)
	}
	stats := out.Data[0].Outputs.Default.Bands.B0.Stats
	if stats.SampleCount == 0 || stats.SampleCount == stats.NoDataCount {
		return 0, fmt.Errorf("sentinelhub %s: all pixels masked: %w", zoneName, ErrUnavailable)
	}
	return stats.Mean, nil
}

// accessToken returns a cached token or fetches a new one via the
// client-credentials grant.
func (s *SentinelHub) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}

	s.token = tok.AccessToken
	// Refresh a minute early so in-flight requests never carry a stale token.
	s.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)

	return s.token, nil
}

// Request/response shapes for the statistics API. Only the fields
// Cropsight reads are declared.

type statsRequest struct {
	Input struct {
		Bounds struct {
			BBox       [4]float64 `json:"bbox"`
			Properties struct {
				CRS string `json:"crs"`
			} `json:"properties"`
		} `json:"bounds"`
		Data []statsData `json:"data"`
	} `json:"input"`
	Aggregation struct {
		TimeRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timeRange"`
		AggregationInterval struct {
			Of string `json:"of"`
		} `json:"aggregationInterval"`
		Evalscript string `json:"evalscript"`
	} `json:"aggregation"`
}

type statsData struct {
	Type       string          `json:"type"`
	DataFilter statsDataFilter `json:"dataFilter"`
}

type statsDataFilter struct {
	MaxCloudCoverage int `json:"maxCloudCoverage"`
}

type statsResponse struct {
	Data []struct {
		Outputs struct {
			Default struct {
				Bands struct {
					B0 struct {
						Stats struct {
							Mean        float64 `json:"mean"`
							SampleCount int     `json:"sampleCount"`
							NoDataCount int     `json:"noDataCount"`
						} `json:"stats"`
					} `json:"B0"`
				} `json:"bands"`
			} `json:"default"`
		} `json:"outputs"`
	} `json:"data"`
}
