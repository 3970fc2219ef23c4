package config

const (
	defaultConfigPath            = "~/.config/depotdeck/config.toml"
	defaultStateDir              = "~/.local/share/depotdeck"
	defaultLogDir                = "~/.local/share/depotdeck/logs"
	defaultLogRetentionDays      = 30
	defaultCatalogBaseURL        = "https://manifest.morrenus.xyz"
	defaultMetadataURL           = "https://api.steamcmd.net/v1/info"
	defaultCatalogTimeoutSeconds = 30
	defaultPrefetchWorkers       = 5
	defaultSSHPort               = 22
	defaultSSHUser               = "deck"
	defaultSSHConnectTimeout     = 10
	defaultDepotDownloader       = "DepotDownloaderMod"
	defaultMono                  = "mono"
	defaultRsync                 = "rsync"
	defaultSSHPass               = "sshpass"
	defaultSteamCMD              = "steamcmd"
	defaultLanguage              = "english"
	defaultMaxDownloads          = 25
	defaultRetries               = 3
	defaultRetryBackoffSeconds   = 2
	defaultProgressIntervalMS    = 100
	defaultSLSsteamConfigPath    = "~/.config/SLSsteam/config.yaml"
	defaultNtfyRequestTimeout    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir(),
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Catalog: Catalog{
			BaseURL:         defaultCatalogBaseURL,
			MetadataURL:     defaultMetadataURL,
			TimeoutSeconds:  defaultCatalogTimeoutSeconds,
			PrefetchWorkers: defaultPrefetchWorkers,
		},
		SSH: SSH{
			Port:                  defaultSSHPort,
			User:                  defaultSSHUser,
			ConnectTimeoutSeconds: defaultSSHConnectTimeout,
		},
		Tools: Tools{
			DepotDownloader: defaultDepotDownloader,
			Mono:            defaultMono,
			Rsync:           defaultRsync,
			SSHPass:         defaultSSHPass,
			SteamCMD:        defaultSteamCMD,
		},
		Install: Install{
			Language:            defaultLanguage,
			MaxDownloads:        defaultMaxDownloads,
			Retries:             defaultRetries,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			ProgressIntervalMS:  defaultProgressIntervalMS,
			SLSsteamConfigPath:  defaultSLSsteamConfigPath,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
