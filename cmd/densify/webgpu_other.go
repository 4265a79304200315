//go:build !windows

package main

import "github.com/pkg/errors"

func densifyWebGPU(*sparseInput, runOptions) (*denseOutput, error) {
	return nil, errors.New("webgpu backend is only built on windows")
}
