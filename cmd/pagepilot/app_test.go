package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/v0xg/pagepilot/internal/executor"
)

func TestBoundaryTolerance(t *testing.T) {
	assert.Equal(t, 2.0, boundaryTolerance(2))
	assert.Equal(t, 0.5, boundaryTolerance(0.5))
	assert.Equal(t, float64(executor.ExactBoundaries), boundaryTolerance(0))
	assert.Equal(t, float64(executor.ExactBoundaries), boundaryTolerance(-3))
}
