package modcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aspen-lang/aspen/pkg/value"
)

func TestHashStable(t *testing.T) {
	a := Hash([]byte("func main() {}"))
	b := Hash([]byte("func main() {}"))
	c := Hash([]byte("func main() { }"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGetPutRoundTrip(t *testing.T) {
	c := New(4)
	desc := &value.FunctionDescriptorData{Name: "main"}
	key := Hash([]byte("source"))

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, desc)
	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Same(t, desc, got)
	assert.Equal(t, 1, c.Len())
}

func TestNewDefaultsSize(t *testing.T) {
	c := New(0)
	assert.NotNil(t, c)
}
