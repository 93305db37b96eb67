package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
)

// Store is the subset of a go-redis client needed to describe a key.
// *redis.Client and *redis.Conn satisfy it.
type Store interface {
	Type(ctx context.Context, key string) *redis.StatusCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
}

// MaxValueLen bounds the rendered value of a record.
const MaxValueLen = 256

// Fetch fills r.Type, r.TTL and r.Value from the store. A missing key has
// type "none" and no value.
func Fetch(ctx context.Context, s Store, r Record) (Record, error) {
	typ, err := s.Type(ctx, r.Key).Result()
	if err != nil {
		return r, fmt.Errorf("type %s: %w", r.Key, err)
	}
	r.Type = typ
	r.TTL = NoExpiry
	if typ == "none" {
		return r, nil
	}

	ttl, err := s.PTTL(ctx, r.Key).Result()
	if err != nil {
		return r, fmt.Errorf("pttl %s: %w", r.Key, err)
	}
	if ttl > 0 {
		r.TTL = ttl.Round(time.Millisecond)
	}

	value, err := fetchValue(ctx, s, r.Key, typ)
	if errors.Is(err, redis.Nil) {
		// Expired between TYPE and the read.
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("read %s %s: %w", typ, r.Key, err)
	}
	r.Value = truncate(value, MaxValueLen)
	return r, nil
}

func fetchValue(ctx context.Context, s Store, key, typ string) (string, error) {
	switch typ {
	case "string":
		return s.Get(ctx, key).Result()
	case "list":
		vals, err := s.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return "", err
		}
		return marshal(vals)
	case "set":
		vals, err := s.SMembers(ctx, key).Result()
		if err != nil {
			return "", err
		}
		sort.Strings(vals)
		return marshal(vals)
	case "hash":
		vals, err := s.HGetAll(ctx, key).Result()
		if err != nil {
			return "", err
		}
		// encoding/json sorts map keys.
		return marshal(vals)
	case "zset":
		vals, err := s.ZRangeWithScores(ctx, key, 0, -1).Result()
		if err != nil {
			return "", err
		}
		pairs := make([]string, len(vals))
		for i, z := range vals {
			pairs[i] = fmt.Sprintf("%v=%s", z.Member, strconv.FormatFloat(z.Score, 'g', -1, 64))
		}
		return marshal(pairs)
	default:
		return "<" + typ + ">", nil
	}
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
