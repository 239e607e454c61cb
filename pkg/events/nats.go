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

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

const (
	cloudEventSource = "punchclock/engine"
	cloudEventPrefix = "com.punchclock.attendance."
)

// cloudEvent is the CloudEvents 1.0 envelope written to the stream.
type cloudEvent struct {
	SpecVersion     string        `json:"specversion"`
	ID              string        `json:"id"`
	Source          string        `json:"source"`
	Type            string        `json:"type"`
	DataContentType string        `json:"datacontenttype"`
	Subject         string        `json:"subject"`
	Time            time.Time     `json:"time"`
	Data            *models.Event `json:"data"`
}

type jetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSSubscriber forwards every event to a JetStream subject derived from its type.
type NATSSubscriber struct {
	id     string
	js     jetStreamPublisher
	nc     *nats.Conn
	prefix string
	logger logger.Logger
}

func newNATSSubscriber(js jetStreamPublisher, nc *nats.Conn, prefix string, log logger.Logger) *NATSSubscriber {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &NATSSubscriber{
		id:     "nats-" + uuid.NewString(),
		js:     js,
		nc:     nc,
		prefix: prefix,
		logger: log,
	}
}

// ConnectNATS dials NATS, makes sure the event stream captures
// <subject_prefix>.> and returns a subscriber publishing into it.
func ConnectNATS(ctx context.Context, cfg *models.NATSConfig, log logger.Logger) (*NATSSubscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	opts := []nats.Option{
		nats.Name("punchclock"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	var js jetstream.JetStream

	if cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, cfg.Domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg.StreamName, cfg.SubjectPrefix+".>"); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("stream", cfg.StreamName).
		Str("subject_prefix", cfg.SubjectPrefix).
		Msg("NATS event sink ready")

	return newNATSSubscriber(js, nc, cfg.SubjectPrefix, log), nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name, subject string) error {
	stream, err := js.Stream(ctx, name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}

		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: []string{subject},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}

		return nil
	}

	cfg := stream.CachedInfo().Config

	subjects := ensureSubjectList(cfg.Subjects, subject)
	if len(subjects) == len(cfg.Subjects) {
		return nil
	}

	cfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add subject %s to stream %s: %w", subject, name, err)
	}

	return nil
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, pattern := range subjects {
		if matchesSubject(pattern, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject using NATS wildcard
// rules. A subject that is itself a wildcard is only covered by an equal or
// broader pattern.
func matchesSubject(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")

	for i, token := range p {
		if token == ">" {
			return len(s) > i
		}

		if i >= len(s) {
			return false
		}

		if token != "*" && token != s[i] {
			return false
		}

		if token == "*" && s[i] == ">" {
			return false
		}
	}

	return len(p) == len(s)
}

func (n *NATSSubscriber) ID() string { return n.id }

func (n *NATSSubscriber) Send(ctx context.Context, ev *models.Event) error {
	subject := n.prefix + "." + string(ev.Type)

	envelope := cloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          cloudEventSource,
		Type:            cloudEventPrefix + string(ev.Type),
		DataContentType: "application/json",
		Subject:         subject,
		Time:            ev.Timestamp,
		Data:            ev,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := n.js.Publish(ctx, subject, payload, jetstream.WithMsgID(envelope.ID)); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}

	return nil
}

func (n *NATSSubscriber) Close() error {
	if n.nc == nil {
		return nil
	}

	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}
