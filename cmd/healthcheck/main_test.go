package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{"127.0.0.1:8080", "127.0.0.1:8080"},
		{"0.0.0.0:9090", "127.0.0.1:9090"},
		{":7000", "127.0.0.1:7000"},
		{"[::]:7000", "127.0.0.1:7000"},
		{"10.0.0.5:8080", "10.0.0.5:8080"},
		{"garbage", defaultAddr},
	}

	for _, tt := range tests {
		t.Run(tt.listen, func(t *testing.T) {
			assert.Equal(t, tt.want, probeAddr(tt.listen))
		})
	}
}
