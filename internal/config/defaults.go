package config

const (
	defaultConfigPath         = "~/.config/podsig/config.toml"
	defaultReleasesDir        = "~/podcast/releases"
	defaultStateDir           = "~/.local/share/podsig"
	defaultLogDir             = "~/.local/share/podsig/logs"
	defaultKeystore           = "~/podcast/gpg"
	defaultSignatureExtension = "asc"
	defaultSigningWorkers     = 4
	defaultFeedBaseURL        = "https://sysadministrivia.com"
	defaultFeedDelimiter      = ":"
	defaultRequestTimeout     = 30
	defaultDownloadTimeout    = 900
	defaultFeedWorkers        = 2
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLedgerFile         = "ledger.db"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ReleasesDir: defaultReleasesDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Signing: Signing{
			Keystore:           defaultKeystore,
			Armor:              true,
			SignatureExtension: defaultSignatureExtension,
			Extensions:         []string{"mp3", "ogg"},
			Workers:            defaultSigningWorkers,
		},
		Feeds: Feeds{
			BaseURL:         defaultFeedBaseURL,
			Delimiter:       defaultFeedDelimiter,
			RequestTimeout:  defaultRequestTimeout,
			DownloadTimeout: defaultDownloadTimeout,
			Workers:         defaultFeedWorkers,
			Default:         []string{"itunes", "google", "mp3", "ogg"},
			Paths: map[string]string{
				"itunes": "/feed/itunes.xml",
				"google": "/feed/google.xml",
				"mp3":    "/feed/podcast.xml",
				"ogg":    "/feed/oggcast.xml",
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Ledger: Ledger{
			Enabled: true,
		},
	}
}
