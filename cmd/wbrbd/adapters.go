package main

import "github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"

// stringAdapters wires the engine's six conversion points for the simplest
// useful embedding: a plain string-keyed, string-valued KV cache where an
// "update" simply replaces whatever value is currently cached. Every
// deployment profile (memory/sqlite/postgres/redis) shares this instance —
// only the Storage implementation underneath differs.
func stringAdapters() wbrbcache.Adapters[string, string, string, string, string, string] {
	return wbrbcache.Adapters[string, string, string, string, string, string]{
		ConvertUpdate: func(key string, ext string) (string, error) {
			return ext, nil
		},
		FromStorage: func(key string, s string) (string, error) {
			return s, nil
		},
		ToReturnValue: func(key string, c string) (string, error) {
			return c, nil
		},
		// Merge re-bases pending local updates on top of the value the
		// resync read just fetched: the freshly read storage value is the
		// new baseline, but any update collected while the resync was in
		// flight is still newer than that baseline and must win.
		Merge: func(key string, cached string, storage string, pending []string) (string, error) {
			result := storage
			for _, u := range pending {
				result = u
			}
			return result, nil
		},
		Apply: func(u string, c string) (string, error) {
			return u, nil
		},
		SplitForWrite: func(c string) (string, string, error) {
			return c, c, nil
		},
	}
}
