package config

const (
	defaultDataDir             = "~/.local/share/tagstation"
	defaultLogDir              = "~/.local/share/tagstation/logs"
	defaultLockDir             = "~/.local/share/tagstation/locks"
	defaultCatalogFile         = "flaschen_database.db"
	defaultLabelDir            = "~/.local/share/tagstation/qr_codes"
	defaultReaderDevice        = "/dev/serial0"
	defaultReaderBaud          = 115200
	defaultPollIntervalMillis  = 500
	defaultResponseTimeoutMs   = 1000
	defaultStationMode         = "recipe-lookup"
	defaultStationName         = "station"
	defaultDisplayLocale       = "de-DE"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	readerDeviceEnv            = "TAGSTATION_READER_DEVICE"
	defaultConfigPathTemplate  = "~/.config/tagstation/config.toml"
	projectConfigFileName      = "tagstation.toml"
	defaultDeviceWaitSeconds   = 0
	maxPollIntervalMillis      = 10_000
	maxResponseTimeoutMillis   = 30_000
	minimumPollIntervalMillis  = 10
	minimumResponseTimeoutMsec = 50
)

// StationModes lists the station presets accepted by station.mode.
var StationModes = []string{"tag-write", "recipe-lookup", "label"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			LockDir: defaultLockDir,
		},
		Reader: Reader{
			Device:            defaultReaderDevice,
			Baud:              defaultReaderBaud,
			PollIntervalMs:    defaultPollIntervalMillis,
			ResponseTimeoutMs: defaultResponseTimeoutMs,
			WaitSeconds:       defaultDeviceWaitSeconds,
		},
		Station: Station{
			Mode: defaultStationMode,
			Name: defaultStationName,
		},
		Label: Label{
			OutputDir: defaultLabelDir,
		},
		Display: Display{
			Locale: defaultDisplayLocale,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
