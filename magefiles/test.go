//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test. None of them need a GPU.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./engine/..."), withStream())
	return err
}
