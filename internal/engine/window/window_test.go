package window

import (
	"slices"
	"testing"

	"github.com/veandco/go-sdl2/sdl"
)

func TestCreateFlags(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		fullscreen bool
	}{
		{"windowed", Config{Width: 1280, Height: 720}, false},
		{"fullscreen", Config{Width: 1280, Height: 720, Fullscreen: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := createFlags(tt.cfg)
			for _, want := range []uint32{sdl.WINDOW_OPENGL, sdl.WINDOW_RESIZABLE, sdl.WINDOW_ALLOW_HIGHDPI} {
				if flags&want == 0 {
					t.Errorf("flag %#x missing from %#x", want, flags)
				}
			}
			if got := flags&sdl.WINDOW_FULLSCREEN_DESKTOP != 0; got != tt.fullscreen {
				t.Errorf("desktop fullscreen = %v, want %v", got, tt.fullscreen)
			}
		})
	}
}

func TestSampleAttempts(t *testing.T) {
	tests := []struct {
		samples int
		want    []int
	}{
		{0, []int{0}},
		{-1, []int{0}},
		{4, []int{4, 0}},
		{8, []int{8, 0}},
	}

	for _, tt := range tests {
		if got := sampleAttempts(tt.samples); !slices.Equal(got, tt.want) {
			t.Errorf("sampleAttempts(%d) = %v, want %v", tt.samples, got, tt.want)
		}
	}
}
