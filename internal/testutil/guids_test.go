package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialGenerator_Order(t *testing.T) {
	gen := NewSequentialGenerator()

	assert.Equal(t, "00000000000000000000000000000001", gen.New().String())
	assert.Equal(t, "00000000000000000000000000000002", gen.New().String())
	assert.Equal(t, SeqGUID(3), gen.New())
}

func TestSequentialGenerator_NeverNull(t *testing.T) {
	gen := NewSequentialGenerator()
	for i := 0; i < 100; i++ {
		assert.False(t, gen.New().IsNull())
	}
}

func TestSequentialGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialGenerator()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				gen.New()
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, SeqGUID(1001), gen.New())
}
