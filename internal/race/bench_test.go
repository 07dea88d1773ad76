package race

import (
	"context"
	"testing"
)

func BenchmarkRun_Accepted(b *testing.B) {
	guard := GuardFunc[int](func(ctx context.Context, _ int) (Verdict, error) { return Accept(), nil })
	producer := ProducerFunc[int, int](func(ctx context.Context, n int) (int, error) { return n * 2, nil })
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Run(ctx, i, guard, producer, Options{})
	}
}

func BenchmarkRun_Rejected(b *testing.B) {
	guard := GuardFunc[int](func(ctx context.Context, _ int) (Verdict, error) { return Reject("no"), nil })
	producer := ProducerFunc[int, int](func(ctx context.Context, n int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Run(ctx, i, guard, producer, Options{})
	}
}
