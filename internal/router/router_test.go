package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/logger"
)

// TestRouterFairness verifies P5: for N partitions over H hosts, host
// assignment is exactly the deterministic i mod H, matching S7 (10
// partitions, 3 hosts -> [0,1,2,0,1,2,0,1,2,0]).
func TestRouterFairness(t *testing.T) {
	r, err := New(config.TargetConfig{Hosts: []string{"h0", "h1", "h2"}}, logger.Default())
	require.NoError(t, err)

	want := []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}
	hosts := []string{"h0", "h1", "h2"}
	for partitionID, wantIdx := range want {
		assert.Equal(t, hosts[wantIdx], r.HostFor(partitionID), "partition %d", partitionID)
	}
}

func TestRouterFairnessDistribution(t *testing.T) {
	r, err := New(config.TargetConfig{Hosts: []string{"a", "b", "c"}}, logger.Default())
	require.NoError(t, err)

	counts := map[string]int{}
	for p := 0; p < 10; p++ {
		counts[r.HostFor(p)]++
	}
	assert.Equal(t, 4, counts["a"])
	assert.Equal(t, 3, counts["b"])
	assert.Equal(t, 3, counts["c"])
}

func TestNewRejectsEmptyHosts(t *testing.T) {
	_, err := New(config.TargetConfig{}, logger.Default())
	require.Error(t, err)
}
