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

package app

import (
	"errors"
	"fmt"

	"github.com/hrxen/punchclock/pkg/engine"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/models"
)

const (
	StoreMemory = "memory"
	StoreCNPG   = "cnpg"

	defaultListenAddr = ":8090"
)

var (
	errUnknownStore = errors.New("unknown store kind")
	errMissingCNPG  = errors.New("store.cnpg is required for the cnpg store")
)

// Config is the on-disk layout of punchclock.json.
type Config struct {
	Engine  engine.Config    `json:"engine"`
	API     models.APIConfig `json:"api"`
	Store   StoreConfig      `json:"store"`
	Logging *logger.Config   `json:"logging"`
}

type StoreConfig struct {
	Kind          string               `json:"kind"`
	SeedFile      string               `json:"seed_file,omitempty"`
	CNPG          *models.CNPGDatabase `json:"cnpg,omitempty"`
	RunMigrations bool                 `json:"run_migrations"`
}

// Validate fills defaults and checks the store selection.
func (c *Config) Validate() error {
	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if c.Logging.OTel.ServiceName == "" {
		c.Logging.OTel.ServiceName = serviceName
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = defaultListenAddr
	}

	switch c.Store.Kind {
	case "", StoreMemory:
		c.Store.Kind = StoreMemory
	case StoreCNPG:
		if c.Store.CNPG == nil {
			return errMissingCNPG
		}
	default:
		return fmt.Errorf("%w: %s", errUnknownStore, c.Store.Kind)
	}

	return c.Engine.Validate()
}
