package tundra_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTundra(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "tundra suite")
}
