package safe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
		// panic 被吞掉，进程还活着
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestMustNotNil(t *testing.T) {
	assert.Panics(t, func() { MustNotNil(nil, "thing") })
	var p *int
	assert.Panics(t, func() { MustNotNil(p, "pointer") })

	v := 1
	assert.NotPanics(t, func() { MustNotNil(&v, "value") })
}
