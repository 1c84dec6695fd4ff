package cacheport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_SetGet_RoundTrips(t *testing.T) {
	c := NewLRUCache(10)
	c.Set("k1", []byte("v1"), 0)

	v, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestLRUCache_Get_MissingKey(t *testing.T) {
	c := NewLRUCache(10)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Get_ExpiredEntryIsEvicted(t *testing.T) {
	c := NewLRUCache(10)
	c.Set("k1", []byte("v1"), 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestLRUCache_Delete_RemovesEntry(t *testing.T) {
	c := NewLRUCache(10)
	c.Set("k1", []byte("v1"), 0)
	c.Delete("k1")

	_, ok := c.Get("k1")
	assert.False(t, ok)
}
