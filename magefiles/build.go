//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderSources = []string{"bindless.vert", "bindless.frag"}

// Compiles every GLSL shader under assets/shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the testbed binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/anima", "."), withStream())
	return err
}

func buildShaders() error {
	dir := filepath.Join("assets", "shaders")
	for _, src := range shaderSources {
		in := filepath.Join(dir, src)
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", in, "-o", in+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
