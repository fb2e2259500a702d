package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgram_DisplayName(t *testing.T) {
	name := "News 9"
	tests := []struct {
		name string
		p    Program
		want string
	}{
		{"named", Program{Name: &name}, "News 9"},
		{"nil name", Program{}, "untitled"},
		{"empty name", Program{Name: new(string)}, "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.DisplayName())
		})
	}
}

func TestProgram_EndAt(t *testing.T) {
	start := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)

	t.Run("known duration", func(t *testing.T) {
		dur := int64(30 * 60 * 1000)
		p := Program{StartAt: start, Duration: &dur}
		assert.Equal(t, start.Add(30*time.Minute), p.EndAt())
	})

	t.Run("unknown duration falls back to one hour", func(t *testing.T) {
		p := Program{StartAt: start}
		assert.Equal(t, start.Add(time.Hour), p.EndAt())
	})
}
