package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPool_InvalidConnectionString(t *testing.T) {
	_, err := NewPool(context.Background(), "not-a-valid-dsn")
	assert.Error(t, err)
}
