package config

// withLocalDefaults fills in the settings of a developer machine: any origin
// may connect, run workspaces are kept for inspection and a local MinIO is
// used for run logs when MINIO_ENDPOINT is set.
func withLocalDefaults(cfg *Config, env func(string) string) *Config {
	cfg.AllowedOrigins = []string{"*"}
	cfg.Run.WorkspaceDir = "tmp/runs"
	cfg.Run.KeepWorkspace = true
	if endpoint := env("MINIO_ENDPOINT"); endpoint != "" {
		cfg.Artifact.Endpoint = endpoint
	}
	return cfg
}
