package reduce

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"separable-convolution/internal/transport"
)

func TestAtomicMaxConcurrent(t *testing.T) {
	var m AtomicMax
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := 0; v < 200; v++ {
				m.Observe(byte((v*7 + w) % 201))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, byte(200), m.Load())

	m.Reset()
	assert.Equal(t, byte(0), m.Load())
	m.Observe(0)
	assert.Equal(t, byte(0), m.Load())
}

func TestLockedMaxConcurrent(t *testing.T) {
	var m LockedMax
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Observe(byte(w * 30))
		}()
	}
	wg.Wait()
	assert.Equal(t, byte(210), m.Load())
}

func TestAllToAll(t *testing.T) {
	codec, err := transport.NewCodec(false)
	require.NoError(t, err)
	defer codec.Close()

	for _, size := range []int{1, 2, 5} {
		mesh := transport.NewLocalMesh(size, codec)
		results := make([][]byte, size)

		g, ctx := errgroup.WithContext(context.Background())
		for rank := 0; rank < size; rank++ {
			g.Go(func() error {
				ep := mesh.Endpoint(rank)
				for it := 0; it < 3; it++ {
					top, err := AllToAll(ctx, ep, it, byte(rank*10+it))
					if err != nil {
						return err
					}
					results[rank] = append(results[rank], top)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait(), "size %d", size)
		mesh.Close()

		want := []byte{byte((size-1)*10 + 0), byte((size-1)*10 + 1), byte((size-1)*10 + 2)}
		for rank, got := range results {
			assert.Equal(t, want, got, "size %d rank %d", size, rank)
		}
	}
}

func TestAllToAllRejectsIterationMismatch(t *testing.T) {
	codec, err := transport.NewCodec(false)
	require.NoError(t, err)
	defer codec.Close()

	mesh := transport.NewLocalMesh(2, codec)
	defer mesh.Close()
	ctx := context.Background()

	require.NoError(t, mesh.Endpoint(1).Send(ctx, 0, transport.MaxValue{Iteration: 4, Value: 1}))
	_, err = AllToAll(ctx, mesh.Endpoint(0), 3, 9)
	assert.ErrorIs(t, err, transport.ErrUnexpectedMessage)
}
