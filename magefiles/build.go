//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

// Default runs the checks CI runs.
var Default = Check

// Check runs Lint and Test.
func Check() {
	mg.SerialDeps(Lint, Test)
}

// Test runs the package tests with the race detector. The nogpu tag keeps
// the Vulkan driver out so tests run on machines without a GPU.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-tags", "nogpu", "./..."), withStream())
	return err
}

// Lint runs go vet and golangci-lint.
func Lint() error {
	if _, err := executeCmd("go", withArgs("vet", "-tags", "nogpu", "./..."), withStream()); err != nil {
		return err
	}
	_, err := executeCmd("golangci-lint", withArgs("run", "./..."), withStream())
	return err
}

// Demo runs hizdemo with both strategies on the software backend.
func Demo() error {
	for _, s := range []string{"iterative", "aggregated"} {
		if _, err := executeCmd("go", withArgs("run", "./cmd/hizdemo", "-backend", "software", "-strategy", s), withStream()); err != nil {
			return err
		}
	}
	return nil
}

type Kernels mg.Namespace

// Check validates every built-in kernel with naga.
func (Kernels) Check() error {
	_, err := executeCmd("go", withArgs("test", "-run", "Kernel", "."), withStream())
	return err
}
