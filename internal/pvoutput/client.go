package pvoutput

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultEndpoint = "https://pvoutput.org/service/r2/addstatus.jsp"

// Client uploads status updates to the PVOutput "Add Status" service.
// Delivery is best effort: one attempt per sample, no retry.
type Client struct {
	endpoint string
	apiKey   string
	systemID string
	dryRun   bool
	http     *http.Client
	log      *zap.Logger
}

type ClientConfig struct {
	Endpoint string // defaults to the live PVOutput service
	APIKey   string
	SystemID string
	DryRun   bool
	Logger   *zap.Logger
}

func NewClient(cfg ClientConfig) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		systemID: cfg.SystemID,
		dryRun:   cfg.DryRun,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Send posts one status: cumulative energy-today (v1, Wh), instantaneous
// power (v2, W), optional temperature (v5, °C) and voltage (v6, V), stamped
// with the current local date and time. Success requires HTTP 200 and a body
// that does not start with an error marker. In dry-run mode the payload is
// only logged and the call always succeeds.
func (c *Client) Send(now time.Time, powerW int, energyTodayWh float64, voltageV, tempC *float64) error {
	form := url.Values{}
	form.Set("d", now.Format("20060102"))
	form.Set("t", now.Format("15:04"))
	form.Set("v1", fmt.Sprintf("%d", int(energyTodayWh+0.5)))
	form.Set("v2", fmt.Sprintf("%d", powerW))
	if tempC != nil {
		form.Set("v5", fmt.Sprintf("%.1f", *tempC))
	}
	if voltageV != nil {
		form.Set("v6", fmt.Sprintf("%.1f", *voltageV))
	}

	if c.dryRun {
		c.log.Info("dry run, skipping PVOutput upload", zap.String("payload", form.Encode()))
		return nil
	}

	if c.apiKey == "" || c.systemID == "" {
		return fmt.Errorf("missing PVOutput credentials")
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pvoutput request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Pvoutput-Apikey", c.apiKey)
	req.Header.Set("X-Pvoutput-SystemId", c.systemID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pvoutput request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pvoutput bad status %d: %s", resp.StatusCode, text)
	}
	if strings.HasPrefix(strings.ToUpper(text), "ERROR") {
		return fmt.Errorf("pvoutput error response: %s", text)
	}

	c.log.Info("PVOutput upload OK",
		zap.Int("power_w", powerW),
		zap.Int("energy_today_wh", int(energyTodayWh+0.5)))
	return nil
}
