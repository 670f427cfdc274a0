package commands

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/absfs/smbctx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// cliConfig is the connection configuration as read from flags, the config
// file and SMBCTX_* environment variables.
type cliConfig struct {
	URL          string        `mapstructure:"url"`
	Server       string        `mapstructure:"server"`
	Port         int           `mapstructure:"port"`
	Share        string        `mapstructure:"share"`
	Root         string        `mapstructure:"root"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Domain       string        `mapstructure:"domain"`
	Workgroup    string        `mapstructure:"workgroup"`
	Guest        bool          `mapstructure:"guest"`
	Timeout      time.Duration `mapstructure:"timeout"`
	InjectFaults []string      `mapstructure:"inject_faults"`
}

// flagKeys maps viper keys to persistent flag names.
var flagKeys = map[string]string{
	"url":           "url",
	"server":        "server",
	"port":          "port",
	"share":         "share",
	"root":          "root",
	"username":      "username",
	"password":      "password",
	"domain":        "domain",
	"workgroup":     "workgroup",
	"guest":         "guest",
	"timeout":       "timeout",
	"inject_faults": "inject-faults",
}

// promptPassword reads a password when one is needed but not configured.
var promptPassword = readPassword

// setupViper configures environment and config file lookup and binds the
// persistent flags.
func setupViper(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix("SMBCTX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	flags := cmd.Root().PersistentFlags()
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// loadConfig builds the library configuration for a command invocation.
// Precedence: flags, environment, config file, connection string.
func loadConfig(cmd *cobra.Command) (*smbctx.Config, error) {
	v := viper.New()
	if err := setupViper(v, cmd); err != nil {
		return nil, err
	}

	var cc cliConfig
	if err := v.Unmarshal(&cc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg := &smbctx.Config{}
	if cc.URL != "" {
		parsed, err := smbctx.ParseConnectionString(cc.URL)
		if err != nil {
			return nil, err
		}
		cfg = parsed
		if cc.Username != "" {
			cfg.GuestAccess = false
		}
	}

	overlay(&cfg.Server, cc.Server)
	overlay(&cfg.Share, cc.Share)
	overlay(&cfg.Root, cc.Root)
	overlay(&cfg.Username, cc.Username)
	overlay(&cfg.Password, cc.Password)
	overlay(&cfg.Domain, cc.Domain)
	overlay(&cfg.Workgroup, cc.Workgroup)
	if cc.Port != 0 {
		cfg.Port = cc.Port
	}
	if cc.Timeout != 0 {
		cfg.ConnTimeout = cc.Timeout
	}
	if cc.Guest {
		cfg.GuestAccess = true
	}
	if err := applyFaults(cfg, cc.InjectFaults); err != nil {
		return nil, err
	}

	if verbose {
		cfg.Logger = log.New(cmd.ErrOrStderr(), "smbctx: ", log.LstdFlags)
	}

	if !cfg.GuestAccess && cfg.Username != "" && cfg.Password == "" {
		password, err := promptPassword()
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}

	return cfg, nil
}

// applyFaults turns the inject-faults list into per-path Config flags.
func applyFaults(cfg *smbctx.Config, faults []string) error {
	for _, f := range faults {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "create":
			cfg.InjectCreateFault = true
		case "destroy":
			cfg.InjectDestroyFault = true
		case "readdir":
			cfg.InjectReaddirFault = true
		case "":
		default:
			return fmt.Errorf("unknown fault %q: want create, destroy or readdir", f)
		}
	}
	return nil
}

// sharePath turns a command argument into an io/fs name relative to the
// configured root: "/docs/" becomes "docs" and "/" becomes ".".
func sharePath(arg string) string {
	p := strings.Trim(strings.ReplaceAll(arg, "\\", "/"), "/")
	if p == "" {
		return "."
	}
	return p
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// openFS loads the configuration and creates a context-backed filesystem.
func openFS(cmd *cobra.Command) (*smbctx.FileSystem, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return smbctx.NewWithEngine(cfg, newEngine(cfg))
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password required: use --password or SMBCTX_PASSWORD")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(b), nil
}
