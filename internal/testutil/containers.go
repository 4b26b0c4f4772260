package testutil

import (
	"os"
	"os/exec"
	"strings"

	"github.com/testcontainers/testcontainers-go"
)

// isPodman reports whether the container engine behind the docker CLI is Podman.
func isPodman() bool {
	if dockerHost := os.Getenv("DOCKER_HOST"); strings.Contains(dockerHost, "podman") {
		return true
	}

	// Podman's docker-compat layer mentions itself in socket paths and versions
	output, err := exec.Command("docker", "info").CombinedOutput()
	if err == nil && strings.Contains(strings.ToLower(string(output)), "podman") {
		return true
	}

	return false
}

// DetectContainerProvider returns the testcontainers provider for the local
// engine: Podman when DOCKER_HOST or `docker info` says so, Docker otherwise.
func DetectContainerProvider() testcontainers.ProviderType {
	if isPodman() {
		return testcontainers.ProviderPodman
	}
	return testcontainers.ProviderDocker
}

// ConfigureRyuk disables the Ryuk reaper under Podman, where it usually lacks
// permissions. Call it once before starting containers. Returns true if Ryuk
// was disabled.
func ConfigureRyuk() bool {
	if isPodman() && os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
		return true
	}
	return false
}
