package config

import "time"

// ProvisionConfig holds configuration for the image provisioner.
type ProvisionConfig struct {
	DockerHost    string
	ContextDir    string
	ManifestPath  string
	ImageTag      string
	GitTimeout    time.Duration
	BuildTimeout  time.Duration
	WatchContext  bool
	StatsInterval time.Duration
}

// LoadProvisionConfig constructs a ProvisionConfig from environment variables.
func LoadProvisionConfig() ProvisionConfig {
	return ProvisionConfig{
		DockerHost:    GetString("DOCKER_HOST", ""),
		ContextDir:    GetString("PROVISION_CONTEXT", "."),
		ManifestPath:  GetString("PROVISION_MANIFEST", ""),
		ImageTag:      GetString("PROVISION_IMAGE", "puppeteer-automation:latest"),
		GitTimeout:    GetSeconds("GIT_TIMEOUT_SECONDS", 60),
		BuildTimeout:  GetSeconds("BUILD_TIMEOUT_SECONDS", 600),
		WatchContext:  GetBool("PROVISION_WATCH", false),
		StatsInterval: GetSeconds("PROVISION_STATS_SECONDS", 0),
	}
}
