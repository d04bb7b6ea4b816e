//go:build !nogpu

package main

import (
	"github.com/gogpu/shaderdbg/gpu"
	"github.com/gogpu/shaderdbg/pipeline"
)

// openGPU opens a Vulkan surface for pass.
func openGPU(pass *pipeline.Pass, width, height int) (closingSurface, error) {
	return gpu.Open(pass, width, height)
}
