// Package config loads buffer pool startup parameters from a flat
// `key=value` properties file, read with bufio.Scanner rather than any
// general-purpose config library.
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Params are the buffer pool's startup parameters.
type Params struct {
	BufferCount       int   // N, the number of frames
	K                 int   // LRU-K's K
	CRTMillis         int64 // correlated reference period, milliseconds
	RITMillis         int64 // retained-info period, milliseconds
	AnchorStripeCount int   // size of the anchor stripe array; kept prime
}

// Defaults returns the out-of-the-box parameters: 100 frames, LRU-2, a
// 100-second correlated reference period, a 200-second retention period, and
// 1009 anchor stripes.
func Defaults() Params {
	return Params{
		BufferCount:       100,
		K:                 2,
		CRTMillis:         100_000,
		RITMillis:         200_000,
		AnchorStripeCount: 1009,
	}
}

const (
	keyBufferCount = "pool.bufferCount"
	keyLRUK        = "pool.LRU_K"
	keyCRT         = "pool.CRT"
	keyRIT         = "pool.RIT"
	keyAnchors     = "pool.anchorStripeCount"
)

// Load reads a properties file, applying any keys present on top of
// Defaults(). Missing files are not an error — a fresh install has no
// config file and runs on defaults, with each key falling back
// independently.
func Load(path string) (Params, error) {
	p := Defaults()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, errors.Wrapf(err, "config: open %s", path)
	}
	defer f.Close()

	kv, err := parseProperties(f)
	if err != nil {
		return p, err
	}
	if err := applyOverrides(&p, kv); err != nil {
		return p, err
	}
	return p, nil
}

func parseProperties(f *os.File) (map[string]string, error) {
	kv := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		kv[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "config: scan properties")
	}
	return kv, nil
}

func applyOverrides(p *Params, kv map[string]string) error {
	fields := []struct {
		key string
		set func(int64) error
	}{
		{keyBufferCount, func(v int64) error { p.BufferCount = int(v); return nil }},
		{keyLRUK, func(v int64) error { p.K = int(v); return nil }},
		{keyCRT, func(v int64) error { p.CRTMillis = v; return nil }},
		{keyRIT, func(v int64) error { p.RITMillis = v; return nil }},
		{keyAnchors, func(v int64) error { p.AnchorStripeCount = int(v); return nil }},
	}
	for _, field := range fields {
		raw, ok := kv[field.key]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "config: parse %s=%q", field.key, raw)
		}
		if err := field.set(v); err != nil {
			return err
		}
	}
	return nil
}

// EnvOverrides applies POOL_-prefixed environment variables on top of p,
// for container-friendly deployment where a properties file isn't mounted.
func EnvOverrides(p *Params) {
	if v, ok := envInt("POOL_BUFFER_COUNT"); ok {
		p.BufferCount = int(v)
	}
	if v, ok := envInt("POOL_LRU_K"); ok {
		p.K = int(v)
	}
	if v, ok := envInt("POOL_CRT"); ok {
		p.CRTMillis = v
	}
	if v, ok := envInt("POOL_RIT"); ok {
		p.RITMillis = v
	}
	if v, ok := envInt("POOL_ANCHOR_STRIPES"); ok {
		p.AnchorStripeCount = int(v)
	}
}

func envInt(name string) (int64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
