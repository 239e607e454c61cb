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

package db

import "errors"

var (
	// ErrCNPGTLSDisabled rejects a TLS block combined with sslmode=disable.
	ErrCNPGTLSDisabled = errors.New("cnpg: tls configured but sslmode is disable")

	ErrCNPGConfigMissing = errors.New("cnpg: database config is required")
	ErrCNPGTLSIncomplete = errors.New("cnpg tls: cert_file, key_file, and ca_file are required")
	ErrUnsupportedSSL    = errors.New("cnpg: unsupported sslmode")

	ErrFailedToQuery  = errors.New("failed to query")
	ErrFailedToInsert = errors.New("failed to insert")
	ErrFailedToUpdate = errors.New("failed to update")
)
