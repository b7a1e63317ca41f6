// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when required configuration is missing at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrStoreConnection is returned when a store cannot be reached.
	ErrStoreConnection = errors.New("store connection error")
	// ErrValidation is returned for malformed input. No store is touched.
	ErrValidation = errors.New("validation error")
	// ErrStoreOperation is returned when a query or write fails mid-operation.
	ErrStoreOperation = errors.New("store operation error")
)

// ConnectionError wraps err as ErrStoreConnection, keeping err in the chain.
func ConnectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreConnection, op, err)
}

// OperationError wraps err as ErrStoreOperation, keeping err in the chain.
func OperationError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreOperation, op, err)
}

// ValidationError builds an ErrValidation with a message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Classify returns a short label for err, used for metrics and logs.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrStoreConnection):
		return "connection"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "operation"
	}
}
