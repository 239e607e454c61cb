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
	"fmt"
	"sort"
	"sync"

	"github.com/hrxen/punchclock/pkg/models"
)

// Creator builds an adapter for one device descriptor.
type Creator func(desc *models.DeviceDescriptor, opts Options) (Adapter, error)

// Registry maps protocol family names onto adapter creators.
type Registry interface {
	Register(deviceType string, creator Creator)
	Create(desc *models.DeviceDescriptor, opts Options) (Adapter, error)
	Types() []string
}

type adapterRegistry struct {
	mu        sync.RWMutex
	factories map[string]Creator
}

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return &adapterRegistry{
		factories: make(map[string]Creator),
	}
}

// NewDefaultRegistry returns a registry with every built-in protocol family.
func NewDefaultRegistry() Registry {
	r := NewRegistry()
	r.Register(TypeSimulated, NewSimulated)
	r.Register(TypeZKTeco, NewZKTeco)
	r.Register(TypeSuprema, NewSuprema)
	r.Register(TypeGeneric, NewGeneric)

	return r
}

func (r *adapterRegistry) Register(deviceType string, creator Creator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[deviceType] = creator
}

func (r *adapterRegistry) Create(desc *models.DeviceDescriptor, opts Options) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[desc.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDeviceType, desc.Type)
	}

	return f(desc, opts)
}

func (r *adapterRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}
