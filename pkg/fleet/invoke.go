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

package fleet

import (
	"context"
	"fmt"
	"time"
)

type outcome[T any] struct {
	value T
	err   error
}

// invoke runs fn with its own timeout and returns when fn does or the timeout
// fires, whichever is first. A call that ignores its context is abandoned,
// not waited for. Panics come back as ErrAdapterPanic.
func invoke[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return invokeTracked(ctx, timeout, fn, nil)
}

// invokeTracked is invoke with a hook that runs when fn really finishes,
// which may be after invoke has given up on it.
func invokeTracked[T any](
	ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), finished func(),
) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	done := make(chan outcome[T], 1)

	go func() {
		defer cancel()

		if finished != nil {
			defer finished()
		}

		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{value: zero, err: fmt.Errorf("%w: %v", ErrAdapterPanic, r)}
			}
		}()

		v, err := fn(callCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-callCtx.Done():
		select {
		case out := <-done:
			return out.value, out.err
		default:
		}

		var zero T

		return zero, fmt.Errorf("adapter call abandoned: %w", callCtx.Err())
	}
}
