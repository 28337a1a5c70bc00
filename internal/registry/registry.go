// Package registry tracks the process-wide count of active SDK factories,
// and how many of them share an SDK key with another ("redundant"), mirroring
// the original client's module-level factory bookkeeping.
package registry

import "sync"

var (
	mu        sync.Mutex
	active    int
	byAPIKey  = make(map[string]int)
	redundant int
)

// Register records a new factory construction for the given SDK key and
// returns whether it is redundant (another factory already holds that key).
func Register(apiKey string) (isRedundant bool) {
	mu.Lock()
	defer mu.Unlock()
	active++
	byAPIKey[apiKey]++
	if byAPIKey[apiKey] > 1 {
		redundant++
		return true
	}
	return false
}

// Unregister records a factory's destruction.
func Unregister(apiKey string) {
	mu.Lock()
	defer mu.Unlock()
	if n := byAPIKey[apiKey]; n > 0 {
		if active > 0 {
			active--
		}
		if n > 1 {
			if redundant > 0 {
				redundant--
			}
		}
		byAPIKey[apiKey] = n - 1
		if byAPIKey[apiKey] == 0 {
			delete(byAPIKey, apiKey)
		}
	}
}

// Counts returns the current active and redundant factory counts.
func Counts() (activeFactories, redundantFactories int) {
	mu.Lock()
	defer mu.Unlock()
	return active, redundant
}

// reset clears all registry state. Exposed only to tests in this package.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	active = 0
	redundant = 0
	byAPIKey = make(map[string]int)
}
