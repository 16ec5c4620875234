// Package util holds small generic helpers.
package util

import (
	"errors"
	"sync"
)

// Each calls fn for every input with at most limit calls in flight. Every
// input is processed even when some fail; the failures are joined.
func Each[T any](inputs []T, limit int, fn func(T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	tasks := make(chan T)
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for i := 0; i < min(limit, len(inputs)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				if err := fn(item); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}

	for _, item := range inputs {
		tasks <- item
	}
	close(tasks)
	wg.Wait()

	return errors.Join(errs...)
}
