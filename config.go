package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	fetchTimeout   time.Duration
	port           int
	prefix         string
	profile        bool
	rateLimit      float64
	roundDuration  time.Duration
	sessionTimeout time.Duration
	textSourceURL  string
	tlsCert        string
	tlsKey         string
	uniqueNames    bool
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.roundDuration <= 0 {
		return fmt.Errorf("invalid round duration: %s", c.roundDuration)
	}
	if c.fetchTimeout <= 0 {
		return fmt.Errorf("invalid fetch timeout: %s", c.fetchTimeout)
	}
	if c.rateLimit <= 0 {
		return fmt.Errorf("invalid rate limit: %f", c.rateLimit)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TYPEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "typebox",
		Short:         "A multiplayer typing race, packed in a single self-contained webapp.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: TYPEBOX_BIND)")
	fs.DurationVar(&cfg.fetchTimeout, "fetch-timeout", 5*time.Second, "time allowed for fetching a paragraph before falling back to the local generator (env: TYPEBOX_FETCH_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: TYPEBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: TYPEBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: TYPEBOX_PROFILE)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 10, "websocket connection attempts allowed per second per IP (env: TYPEBOX_RATE_LIMIT)")
	fs.DurationVar(&cfg.roundDuration, "round-duration", 60*time.Second, "time limit for a single typing round (env: TYPEBOX_ROUND_DURATION)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: TYPEBOX_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.textSourceURL, "text-source-url", "http://metaphorpsum.com/paragraphs/1/10", "remote source for race paragraphs (env: TYPEBOX_TEXT_SOURCE_URL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: TYPEBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: TYPEBOX_TLS_KEY)")
	fs.BoolVar(&cfg.uniqueNames, "unique-names", true, "reject joins with a name already present in the room (env: TYPEBOX_UNIQUE_NAMES)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: TYPEBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: TYPEBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("typebox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
