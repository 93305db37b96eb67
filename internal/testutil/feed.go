package testutil

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HousekeepingAddr is the client address FakeFeed attributes to sentinel
// writes.
const HousekeepingAddr = "127.0.0.1:50000"

// FakeFeed scripts a MONITOR stream. It plays the server too: sentinel
// writes through Set and Del are echoed into the stream from
// HousekeepingAddr, in order with every line passed to Emit.
type FakeFeed struct {
	mu      sync.Mutex
	lines   chan string
	ts      int64
	written []string
}

func NewFakeFeed() *FakeFeed {
	return &FakeFeed{lines: make(chan string, 1024)}
}

// Run forwards scripted lines until ctx is cancelled.
func (f *FakeFeed) Run(ctx context.Context, lines chan<- string, ready func()) error {
	ready()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-f.lines:
			select {
			case lines <- line:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Emit appends a command issued by addr to the stream.
func (f *FakeFeed) Emit(addr string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ts++

	var b strings.Builder
	b.WriteString(strconv.FormatInt(1700000000+f.ts, 10))
	b.WriteString(".000000 [0 ")
	b.WriteString(addr)
	b.WriteString("]")
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(a))
	}
	f.lines <- b.String()
}

// Sentinels returns every key written through Set, in order.
func (f *FakeFeed) Sentinels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// EmitRaw appends an unparsed line.
func (f *FakeFeed) EmitRaw(line string) {
	f.lines <- line
}

func (f *FakeFeed) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	f.mu.Lock()
	f.written = append(f.written, key)
	f.mu.Unlock()

	s, _ := value.(string)
	f.Emit(HousekeepingAddr, "SET", key, s)
	cmd.SetVal("OK")
	return cmd
}

func (f *FakeFeed) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := make([]any, 0, len(keys)+1)
	args = append(args, "del")
	for _, k := range keys {
		args = append(args, k)
	}
	cmd := redis.NewIntCmd(ctx, args...)
	f.Emit(HousekeepingAddr, append([]string{"DEL"}, keys...)...)
	cmd.SetVal(int64(len(keys)))
	return cmd
}
