/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package device

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrxen/punchclock/pkg/models"
)

const (
	defaultMaxRPS      = 5.0
	maxResponseBodyLen = 16 << 20
)

// vendorProtocol describes the endpoints and JSON envelope of one HTTP
// terminal family.
type vendorProtocol struct {
	connectPath string
	testPath    string
	scansPath   string
	// formatSince renders the "from" query value.
	formatSince func(since time.Time, loc *time.Location) string
	envelope    string
	personKey   string
	timeKey     string
	kindKey     string
}

// HTTPAdapter polls a terminal exposing a JSON attendance API.
type HTTPAdapter struct {
	base

	protocol vendorProtocol
	baseURL  string
	username string
	password string
	client   *http.Client
	limiter  *rate.Limiter
}

func newHTTPAdapter(desc *models.DeviceDescriptor, kind string, protocol vendorProtocol, opts Options) (*HTTPAdapter, error) {
	if desc.Address == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAddress, desc.ID)
	}

	a := &HTTPAdapter{
		protocol: protocol,
		username: desc.Username,
		password: desc.Password,
	}
	a.init(desc, kind, opts)

	host := desc.Address
	if desc.Port > 0 {
		host = net.JoinHostPort(desc.Address, strconv.Itoa(desc.Port))
	}

	a.baseURL = (&url.URL{Scheme: desc.ConfigString("scheme", "http"), Host: host}).String()

	a.client = &http.Client{
		Timeout: a.timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: desc.ConfigBool("insecure_skip_verify", false), //nolint:gosec // terminals commonly ship self-signed certs
			},
		},
	}

	rps := desc.ConfigFloat("max_rps", defaultMaxRPS)
	if rps <= 0 {
		rps = defaultMaxRPS
	}

	a.limiter = rate.NewLimiter(rate.Limit(rps), 1)

	return a, nil
}

func (a *HTTPAdapter) Connect(ctx context.Context) error {
	if err := a.probe(ctx, a.protocol.connectPath); err != nil {
		a.setConnected(false)

		return fmt.Errorf("connect %s: %w", a.id, err)
	}

	a.setConnected(true)
	a.logger.Info().Str("device_id", a.id).Str("url", a.baseURL).Msg("Connected to device")

	return nil
}

func (a *HTTPAdapter) Disconnect(context.Context) error {
	a.setConnected(false)
	a.client.CloseIdleConnections()

	return nil
}

// TestConnection probes the status endpoint. A successful probe marks the
// adapter connected so the next poll cycle picks the device up again.
func (a *HTTPAdapter) TestConnection(ctx context.Context) error {
	if err := a.probe(ctx, a.protocol.testPath); err != nil {
		a.setConnected(false)
		return err
	}

	a.setConnected(true)

	return nil
}

func (a *HTTPAdapter) ListScansSince(ctx context.Context, since *time.Time) ([]models.NormalizedScan, error) {
	if !a.IsConnected() {
		return nil, nil
	}

	query := url.Values{}
	if since != nil {
		query.Set("from", a.protocol.formatSince(*since, a.loc))
	}

	body, err := a.get(ctx, a.protocol.scansPath, query)
	if err != nil {
		return nil, err
	}

	records, err := decodeEnvelope(body, a.protocol.envelope)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.id, err)
	}

	scans := make([]models.NormalizedScan, 0, len(records))

	for i, rec := range records {
		scan, err := a.parseRecord(rec)
		if err != nil {
			a.logger.Warn().
				Str("device_id", a.id).
				Int("index", i).
				Err(err).
				Msg("Skipping malformed attendance record")

			continue
		}

		scans = append(scans, scan)
	}

	a.markSynced()

	return scans, nil
}

func (a *HTTPAdapter) parseRecord(rec json.RawMessage) (models.NormalizedScan, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(rec, &fields); err != nil {
		return models.NormalizedScan{}, fmt.Errorf("%w: %w", errMalformedRecord, err)
	}

	personID := tokenString(fields[a.protocol.personKey])
	if personID == "" {
		return models.NormalizedScan{}, fmt.Errorf("%w: missing %s", errMalformedRecord, a.protocol.personKey)
	}

	ts, ok := fields[a.protocol.timeKey].(string)
	if !ok {
		return models.NormalizedScan{}, fmt.Errorf("%w: missing %s", errMalformedRecord, a.protocol.timeKey)
	}

	when, err := parseTimestamp(ts, a.loc)
	if err != nil {
		return models.NormalizedScan{}, err
	}

	return models.NormalizedScan{
		PersonID:  personID,
		Timestamp: when,
		Kind:      a.resolveKind(tokenString(fields[a.protocol.kindKey]), fields),
		DeviceID:  a.id,
		Raw:       fields,
		Valid:     true,
	}, nil
}

func (a *HTTPAdapter) probe(ctx context.Context, path string) error {
	_, err := a.get(ctx, path, nil)
	return err
}

func (a *HTTPAdapter) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", a.id, err)
	}

	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", a.id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", a.id, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", errUnexpectedStatus, resp.StatusCode, path)
	}

	return body, nil
}

// decodeEnvelope returns the raw records under key, leaving each record to be
// decoded on its own so one bad entry cannot spoil the batch.
func decodeEnvelope(body []byte, key string) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	raw, ok := envelope[key]
	if !ok || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %q", errMissingEnvelope, key)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", key, err)
	}

	return records, nil
}
