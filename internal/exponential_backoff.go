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

package internal

import (
	"context"
	"math/rand"
	"time"
)

const Int64Max = 1<<63 - 1

// maxShift caps the exponent, 1<<62 is the largest power of two that fits an int64.
const maxShift = 62

// GetBackoffTime returns a random backoff in [0, 2^retries) slots, capped at maximum.
// Zero retries or a non-positive slot time means no backoff at all.
func GetBackoffTime(retries int64, slotTime time.Duration, maximum time.Duration) time.Duration {
	if slotTime <= 0 || retries <= 0 {
		return 0
	}
	if retries > maxShift {
		return maximum
	}

	slots := int64(1) << retries
	n := rand.Int63n(slots)

	// n * slotTime would overflow
	if n > 0 && int64(slotTime) > Int64Max/n {
		return maximum
	}

	backoff := time.Duration(n) * slotTime
	if backoff > maximum {
		backoff = maximum
	}
	return backoff
}

// GetBackoffCeiling is the upper bound GetBackoffTime may return for retries.
func GetBackoffCeiling(retries int64, slotTime time.Duration, maximum time.Duration) time.Duration {
	if slotTime <= 0 || retries <= 0 {
		return 0
	}
	if retries > maxShift {
		return maximum
	}
	slots := int64(1) << retries
	if int64(slotTime) > Int64Max/slots {
		return maximum
	}
	ceiling := time.Duration(slots) * slotTime
	if ceiling > maximum {
		ceiling = maximum
	}
	return ceiling
}

// SleepBackedOff sleeps for GetBackoffTime or until ctx is done, whichever comes first.
func SleepBackedOff(ctx context.Context, retries int64, slotTime time.Duration, maximum time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(GetBackoffTime(retries, slotTime, maximum))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
