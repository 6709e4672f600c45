package config

import (
	"flag"
	"io"
	"strings"
)

// configPath returns the value of -c or -config from args, if any.
func configPath(args []string) string {
	var path string
	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(filterArgs(args, []string{"-c", "-config", "--c", "--config"}))
	return path
}

// filterArgs keeps only the named flags and their values.
func filterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}
		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}
	return filtered
}

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-port int            listen port
//	-device string       libnfc connection string
//	-backend string      libnfc or virtual
//	-registry string     memory, sqlite or postgres
//	-dsn string          registry DSN
//	-secret string       API secret for the session handshake
//	-mdns bool           advertise over mDNS
//	-log-level string    debug, info, warn or error
//	-log-format string   text or json
//	-lang string         language for error messages
//	-poll duration       reader poll interval
//	-refresh duration    adapter state refresh interval
//	-session-timeout duration
//	-version             print build info and exit
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("umbral-nfc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ignored string
	fs.StringVar(&ignored, "config", "", "path to config file")
	fs.StringVar(&ignored, "c", "", "path to config file (short)")

	fs.IntVar(&config.Port, "port", config.Port, "port to listen on")
	fs.StringVar(&config.DevicePath, "device", config.DevicePath, "libnfc connection string")
	fs.StringVar(&config.Backend, "backend", config.Backend, "reader backend (libnfc, virtual)")
	fs.StringVar(&config.RegistryDriver, "registry", config.RegistryDriver, "registry driver (memory, sqlite, postgres)")
	fs.StringVar(&config.DatabaseDSN, "dsn", config.DatabaseDSN, "registry DSN")
	fs.StringVar(&config.APISecret, "secret", config.APISecret, "API secret for session handshake")
	fs.BoolVar(&config.MDNS, "mdns", config.MDNS, "advertise the agent over mDNS")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (text, json)")
	fs.StringVar(&config.Lang, "lang", config.Lang, "language for error messages")
	fs.DurationVar(&config.PollInterval, "poll", config.PollInterval, "reader poll interval")
	fs.DurationVar(&config.AdapterRefresh, "refresh", config.AdapterRefresh, "adapter state refresh interval")
	fs.DurationVar(&config.SessionTimeout, "session-timeout", config.SessionTimeout, "session idle timeout")
	fs.BoolVar(&config.ShowVersion, "version", false, "print build info and exit")

	return fs.Parse(args)
}
