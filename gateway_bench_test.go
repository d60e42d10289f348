package authbridge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/authbridge/authbridge/cache/memory"
	"github.com/authbridge/authbridge/identity"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkGateway(b *testing.B, withRedis bool, now func() time.Time) (*Gateway, func()) {
	b.Helper()

	verifier := identity.NewStaticVerifier()
	verifier.Put("cred-u1", identity.Identity{UID: "u1", EmailVerified: true})

	builder := New().WithConfig(testConfig()).WithIdentityVerifier(verifier).WithClock(now)
	cleanup := func() {}
	if withRedis {
		mr, err := miniredis.Run()
		if err != nil {
			b.Fatalf("miniredis start: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		builder.WithRedis(rdb)
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
	} else {
		builder.WithCache(memory.New(memory.WithClock(now)))
	}

	g, err := builder.Build()
	if err != nil {
		cleanup()
		b.Fatalf("build: %v", err)
	}
	return g, func() {
		g.Close()
		cleanup()
	}
}

func BenchmarkVerifyMemory(b *testing.B) {
	benchmarkVerify(b, false)
}

func BenchmarkVerifyRedis(b *testing.B) {
	benchmarkVerify(b, true)
}

func benchmarkVerify(b *testing.B, withRedis bool) {
	g, cleanup := newBenchmarkGateway(b, withRedis, time.Now)
	defer cleanup()

	res, err := g.Login(context.Background(), "cred-u1", "")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Verify(context.Background(), res.AccessToken, ""); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkVerifyCachedSuccessor(b *testing.B) {
	clock := &testClock{now: time.Now()}
	g, cleanup := newBenchmarkGateway(b, false, clock.Now)
	defer cleanup()

	res, err := g.Login(context.Background(), "cred-u1", "")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := g.Verify(context.Background(), res.AccessToken, res.RefreshToken); err != nil {
		b.Fatalf("rotation failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Verify(context.Background(), res.AccessToken, res.RefreshToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}
