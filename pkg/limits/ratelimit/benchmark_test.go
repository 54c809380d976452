package ratelimit

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkSlidingWindow_RecordSingleKey(b *testing.B) {
	limiter, _ := NewSlidingWindowLimiter(time.Second, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Record("bench")
	}
}

func BenchmarkSlidingWindow_RecordParallelKeys(b *testing.B) {
	limiter, _ := NewSlidingWindowLimiter(time.Second, 100)
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			limiter.Record(keys[i&1023])
			i++
		}
	})
}

func BenchmarkCooldown_RecordParallelKeys(b *testing.B) {
	limiter, _ := NewCooldownLimiter(time.Millisecond)
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			limiter.Record(keys[i&1023])
			i++
		}
	})
}
