package env

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLayering(t *testing.T) {
	e := New([]string{"MODE=shared", "DATA=${HOME}/data", "=bad", "novalue"}).
		WithBase([]string{"HOME=/home/ops", "MODE=base", "PATH=/usr/bin"})

	got := e.Merge([]string{"MODE=svc", "PORT=9000", "URL=http://localhost:${PORT}"})
	assert.Equal(t, []string{
		"DATA=/home/ops/data",
		"HOME=/home/ops",
		"MODE=svc",
		"PATH=/usr/bin",
		"PORT=9000",
		"URL=http://localhost:9000",
	}, got)
}

func TestExpandEdges(t *testing.T) {
	m := Var{"A": "1"}
	assert.Equal(t, "1-", expand("${A}-${MISSING}", m))
	assert.Equal(t, "x${A", expand("x${A", m))
	assert.Equal(t, "plain", expand("plain", m))
}

func TestMergeDefaultsToOS(t *testing.T) {
	t.Setenv("SVCDECK_ENV_TEST", "yes")
	got := New(nil).Merge(nil)
	assert.Contains(t, got, "SVCDECK_ENV_TEST=yes")
}

func TestMergeConcurrent(t *testing.T) {
	e := New([]string{"SHARED=1"})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got := e.Merge([]string{fmt.Sprintf("N=%d", i)})
			assert.Contains(t, got, "SHARED=1")
			assert.Contains(t, got, fmt.Sprintf("N=%d", i))
		}(i)
	}
	wg.Wait()
}
