//go:build nogpu

package main

import (
	"errors"

	"github.com/gogpu/shaderdbg/pipeline"
)

func openGPU(*pipeline.Pass, int, int) (closingSurface, error) {
	return nil, errors.New("built with nogpu")
}
