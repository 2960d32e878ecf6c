// Package pipecache provides the LRU cache that backs pipeline compilation.
//
// Compiled pipelines are device resources, so the cache reports every entry
// it drops through Cache.OnEvict; the owner decides when it is safe to
// destroy the resource.
//
//	c := pipecache.New[key, compiled](32)
//	c.OnEvict = func(k key, v compiled) { retire(v) }
//	p := c.GetOrCreate(k, compile)
package pipecache
