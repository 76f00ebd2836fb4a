package live

import "context"

// Combine emits fn(a, b) over the latest values of two inputs. The first
// output is produced once both inputs have yielded a value; after that, every
// value on either input produces a new output. The returned channel is closed
// when ctx is done or either input is closed.
func Combine[A, B, C any](ctx context.Context, as <-chan A, bs <-chan B, fn func(A, B) C) <-chan C {
	out := make(chan C, 1)

	go func() {
		defer close(out)

		var (
			a            A
			b            B
			haveA, haveB bool
			ok           bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok = <-as:
				if !ok {
					return
				}
				haveA = true
			case b, ok = <-bs:
				if !ok {
					return
				}
				haveB = true
			}
			if haveA && haveB {
				replace(out, fn(a, b))
			}
		}
	}()
	return out
}

// Pipe copies every value from in into dst until in is closed.
// It blocks; run it in a goroutine.
func Pipe[T any](in <-chan T, dst *Value[T]) {
	for v := range in {
		dst.Set(v)
	}
}
