package wbrbcache

import "fmt"

// anyToString renders a comparable key as a string for use as a
// singleflight.Group key. singleflight requires a string key regardless of
// the cache's actual key type; %v is stable enough for de-duplication
// purposes (it never needs to be parsed back).
func anyToString[K comparable](k K) string {
	return fmt.Sprintf("%v", k)
}
