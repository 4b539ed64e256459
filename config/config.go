package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/mail-to-joplin/credential"
)

const (
	SourceGmail = "gmail"
	SourceIMAP  = "imap"
	SourceMbox  = "mbox"

	DefaultNotebook = "_inbox"
	debugNotebook   = "_debug"
	envPrefix       = "MAIL_TO_JOPLIN"
)

// Config captures all options required to run the importer.
type Config struct {
	Source          string
	Notebook        string
	ApprovedSenders []string
	Debug           bool
	Progress        bool
	LogFile         string
	LogSize         int
	LogLevel        string
	StagingDir      string
	JoplinBin       string
	JoplinProfile   string

	CredentialsFile string
	TokenFile       string

	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	IMAPMailbox        string
	IMAPTrash          string

	MboxPath string
	StateDir string
}

// SecretStore looks up passwords that were not given on the command line.
type SecretStore interface {
	Get(key string) (string, error)
}

// RegisterFlags attaches all CLI flags to the provided command. They are
// persistent so every subcommand shares them.
func RegisterFlags(cmd *cobra.Command) error {
	base, err := defaultBaseDir()
	if err != nil {
		return err
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Optional YAML/TOML/JSON config file; flags take precedence")
	flags.String("source", SourceGmail, "Mail source: gmail, imap or mbox")
	flags.String("notebook", DefaultNotebook, "Joplin notebook receiving imported mail")
	flags.StringSlice("approved-sender", nil, "Sender address to import (repeatable); empty imports everyone")
	flags.Bool("debug", false, "Import into the _debug notebook, never trash mail, never sync")
	flags.Bool("progress", true, "Show a progress bar on the console")
	flags.String("log-file", filepath.Join(base, "log.txt"), "Log file path")
	flags.Int("log-size", 5000, "Maximum log file size in bytes; oldest lines are dropped")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("staging-dir", filepath.Join(base, "downloads"), "Temporary directory for note text and attachments")
	flags.String("joplin-bin", "joplin", "Joplin terminal client executable")
	flags.String("joplin-profile", "", "Joplin profile directory (empty uses the client default)")

	flags.String("credentials", "credentials.json", "Gmail OAuth client credentials file")
	flags.String("token", "token.json", "Gmail OAuth token file")

	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var, then the system keyring)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("imap-mailbox", "INBOX", "IMAP mailbox to read unread mail from")
	flags.String("imap-trash", "Trash", "IMAP mailbox that processed mail is moved to")

	flags.String("mbox", "", "Path to the .mbox file used as the mail source")
	flags.String("state-dir", filepath.Join(base, "state"), "Directory remembering mbox messages already processed")

	return nil
}

// LoadConfig merges the config file (if any), MAIL_TO_JOPLIN_* environment
// variables and the parsed flags into a validated Config. Explicit flags win.
func LoadConfig(cmd *cobra.Command, secrets SecretStore) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Source:             strings.ToLower(strings.TrimSpace(v.GetString("source"))),
		Notebook:           strings.TrimSpace(v.GetString("notebook")),
		ApprovedSenders:    normalizeSenders(v.GetStringSlice("approved-sender")),
		Debug:              v.GetBool("debug"),
		Progress:           v.GetBool("progress"),
		LogFile:            v.GetString("log-file"),
		LogSize:            v.GetInt("log-size"),
		LogLevel:           strings.ToLower(v.GetString("log-level")),
		StagingDir:         v.GetString("staging-dir"),
		JoplinBin:          v.GetString("joplin-bin"),
		JoplinProfile:      v.GetString("joplin-profile"),
		CredentialsFile:    v.GetString("credentials"),
		TokenFile:          v.GetString("token"),
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		IMAPMailbox:        v.GetString("imap-mailbox"),
		IMAPTrash:          v.GetString("imap-trash"),
		MboxPath:           v.GetString("mbox"),
		StateDir:           v.GetString("state-dir"),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if cfg.StagingDir != "" {
		abs, err := filepath.Abs(cfg.StagingDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve --staging-dir: %w", err)
		}
		cfg.StagingDir = abs
	}
	if cfg.StateDir != "" {
		cfg.StateDir = filepath.Clean(cfg.StateDir)
	}

	if cfg.Source == SourceIMAP && cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}
	if cfg.Source == SourceIMAP && cfg.IMAPPass == "" && secrets != nil && cfg.IMAPUser != "" {
		pass, err := secrets.Get(credential.IMAPKey(cfg.IMAPUser, cfg.IMAPHost))
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return Config{}, fmt.Errorf("look up IMAP password: %w", err)
		}
		cfg.IMAPPass = pass
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.Notebook == "" {
		return fmt.Errorf("--notebook must not be empty")
	}
	if cfg.Notebook == debugNotebook {
		return fmt.Errorf("--notebook %s is reserved for --debug", debugNotebook)
	}
	if cfg.StagingDir == "" {
		return fmt.Errorf("--staging-dir is required")
	}
	if cfg.JoplinBin == "" {
		return fmt.Errorf("--joplin-bin is required")
	}
	if cfg.LogSize <= 0 {
		return fmt.Errorf("--log-size must be positive")
	}

	switch cfg.Source {
	case SourceGmail:
		if cfg.CredentialsFile == "" {
			return fmt.Errorf("--credentials is required for the gmail source")
		}
		if cfg.TokenFile == "" {
			return fmt.Errorf("--token is required for the gmail source")
		}
	case SourceIMAP:
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass, IMAP_PASS env var or the system keyring")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	case SourceMbox:
		if cfg.MboxPath == "" {
			return fmt.Errorf("--mbox is required for the mbox source")
		}
		if cfg.StateDir == "" {
			return fmt.Errorf("--state-dir is required for the mbox source")
		}
	default:
		return fmt.Errorf("invalid --source: %s", cfg.Source)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func normalizeSenders(senders []string) []string {
	out := make([]string, 0, len(senders))
	for _, s := range senders {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func defaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mail-to-joplin"), nil
}
