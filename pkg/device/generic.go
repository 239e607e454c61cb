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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hrxen/punchclock/pkg/models"
)

const (
	protocolCustom    = "custom"
	defaultTerminator = "END"
	fieldSeparator    = "|"
)

// Generic speaks a line oriented TCP protocol:
//
//	-> GET_ATTENDANCE|<since RFC3339>   (protocol "custom")
//	-> GET_ATTENDANCE                   (any other protocol)
//	<- person|timestamp|kind[|...]
//	<- END
//
// With an empty terminator the reply ends at EOF instead.
type Generic struct {
	base

	addr       string
	protocol   string
	terminator string

	// connMu serializes use of the socket between the poll and health loops.
	connMu sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func NewGeneric(desc *models.DeviceDescriptor, opts Options) (Adapter, error) {
	if desc.Address == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAddress, desc.ID)
	}

	g := &Generic{
		addr:       net.JoinHostPort(desc.Address, strconv.Itoa(desc.Port)),
		protocol:   desc.ConfigString("protocol", protocolCustom),
		terminator: defaultTerminator,
	}

	// An explicit empty terminator means the device closes the socket after each reply.
	if v, ok := desc.Config["terminator"].(string); ok {
		g.terminator = strings.TrimSpace(v)
	}
	g.init(desc, TypeGeneric, opts)

	return g, nil
}

func (g *Generic) Connect(ctx context.Context) error {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	return g.dialLocked(ctx)
}

func (g *Generic) dialLocked(ctx context.Context) error {
	g.closeLocked()

	dialer := net.Dialer{Timeout: g.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("dial %s (%s): %w", g.id, g.addr, err)
	}

	g.conn = conn
	g.reader = bufio.NewReader(conn)
	g.setConnected(true)

	g.logger.Info().Str("device_id", g.id).Str("addr", g.addr).Msg("Connected to device")

	return nil
}

func (g *Generic) closeLocked() {
	g.dropSocketLocked()
	g.setConnected(false)
}

// dropSocketLocked releases the socket but keeps the adapter connected; the
// next request dials again.
func (g *Generic) dropSocketLocked() {
	if g.conn != nil {
		_ = g.conn.Close()
	}

	g.conn = nil
	g.reader = nil
}

func (g *Generic) Disconnect(context.Context) error {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	g.closeLocked()

	return nil
}

// TestConnection sends PING and expects PONG, redialing first when the
// socket was lost.
func (g *Generic) TestConnection(ctx context.Context) error {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	if g.conn == nil {
		if err := g.dialLocked(ctx); err != nil {
			return err
		}
	}

	var reply string

	err := g.exchangeLocked(ctx, "PING", func(r *bufio.Reader) error {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return err
		}

		reply = line

		return nil
	})
	if err != nil {
		return err
	}

	if !strings.Contains(strings.ToUpper(reply), "PONG") {
		return fmt.Errorf("%w: got %q", errPingFailed, strings.TrimSpace(reply))
	}

	return nil
}

func (g *Generic) ListScansSince(ctx context.Context, since *time.Time) ([]models.NormalizedScan, error) {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	if !g.IsConnected() {
		return nil, nil
	}

	if g.conn == nil {
		if err := g.dialLocked(ctx); err != nil {
			return nil, err
		}
	}

	request := "GET_ATTENDANCE"
	if g.protocol == protocolCustom && since != nil {
		request += fieldSeparator + since.In(g.loc).Format(time.RFC3339)
	}

	lines, err := g.requestLinesLocked(ctx, request)
	if err != nil && isStaleSocket(err) && ctx.Err() == nil {
		// Terminals drop idle sockets; the request is a read, so it is safe to resend.
		g.logger.Debug().Err(err).Str("device_id", g.id).Msg("Socket closed by device, redialing")

		if err := g.dialLocked(ctx); err != nil {
			return nil, err
		}

		lines, err = g.requestLinesLocked(ctx, request)
	}

	if err != nil {
		return nil, err
	}

	scans := make([]models.NormalizedScan, 0, len(lines))

	for _, line := range lines {
		scan, err := g.parseLine(line)
		if err != nil {
			g.logger.Warn().
				Str("device_id", g.id).
				Str("line", line).
				Err(err).
				Msg("Skipping malformed attendance line")

			continue
		}

		scans = append(scans, scan)
	}

	g.markSynced()

	return scans, nil
}

func (g *Generic) requestLinesLocked(ctx context.Context, request string) ([]string, error) {
	var lines []string

	err := g.exchangeLocked(ctx, request, func(r *bufio.Reader) error {
		var err error
		lines, err = g.readUntilTerminator(r)

		return err
	})

	return lines, err
}

func isStaleSocket(err error) bool {
	return errors.Is(err, errConnClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// exchangeLocked writes one request line and lets read consume the reply.
// The socket is dropped on any I/O failure.
func (g *Generic) exchangeLocked(ctx context.Context, request string, read func(*bufio.Reader) error) error {
	deadline := time.Now().Add(g.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := g.conn.SetDeadline(deadline); err != nil {
		g.closeLocked()
		return fmt.Errorf("set deadline on %s: %w", g.id, err)
	}

	conn := g.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := io.WriteString(conn, request+"\n"); err != nil {
		g.closeLocked()
		return fmt.Errorf("write to %s: %w", g.id, err)
	}

	if err := read(g.reader); err != nil {
		g.closeLocked()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("read from %s: %w", g.id, err)
	}

	return nil
}

// readUntilTerminator collects non-empty lines up to the terminator line.
// EOF only ends the response when no terminator is configured; otherwise a
// reply cut short is an error so the caller never mistakes it for "no scans".
func (g *Generic) readUntilTerminator(r *bufio.Reader) ([]string, error) {
	var lines []string

	for {
		line, err := r.ReadString('\n')
		line = strings.TrimSpace(line)

		if g.terminator != "" && line == g.terminator {
			return lines, nil
		}

		if line != "" {
			lines = append(lines, line)
		}

		if errors.Is(err, io.EOF) {
			if g.terminator == "" {
				g.dropSocketLocked()
				return lines, nil
			}

			if len(lines) == 0 {
				return nil, errConnClosed
			}

			return nil, fmt.Errorf("%w: %d lines before %s", io.ErrUnexpectedEOF, len(lines), g.terminator)
		}

		if err != nil {
			return nil, err
		}
	}
}

func (g *Generic) parseLine(line string) (models.NormalizedScan, error) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) < 3 {
		return models.NormalizedScan{}, fmt.Errorf("%w: expected person|timestamp|kind", errMalformedRecord)
	}

	personID := strings.TrimSpace(parts[0])
	if personID == "" {
		return models.NormalizedScan{}, fmt.Errorf("%w: empty person id", errMalformedRecord)
	}

	when, err := parseTimestamp(parts[1], g.loc)
	if err != nil {
		return models.NormalizedScan{}, err
	}

	raw := map[string]interface{}{"line": line}
	if len(parts) > 3 {
		raw["extra"] = parts[3:]
	}

	return models.NormalizedScan{
		PersonID:  personID,
		Timestamp: when,
		Kind:      g.resolveKind(strings.TrimSpace(parts[2]), raw),
		DeviceID:  g.id,
		Raw:       raw,
		Valid:     true,
	}, nil
}
