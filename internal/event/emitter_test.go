package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter(t *testing.T) {
	var e Emitter[int]
	var got []int

	unsubscribeA := e.On(func(v int) { got = append(got, v) })
	e.On(func(v int) { got = append(got, v*10) })

	e.Fire(1)
	assert.Equal(t, []int{1, 10}, got)

	unsubscribeA()
	unsubscribeA()
	e.Fire(2)
	assert.Equal(t, []int{1, 10, 20}, got)
}

func TestEmitterListenerMayUnsubscribeDuringFire(t *testing.T) {
	var e Emitter[string]
	calls := 0

	var unsubscribe func()
	unsubscribe = e.On(func(string) {
		calls++
		unsubscribe()
	})

	e.Fire("a")
	e.Fire("b")
	assert.Equal(t, 1, calls)
}
