package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pmdash"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage pmdash configuration.

Running bare 'pmdash config' is the same as 'pmdash config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# pmdash configuration
# See: pmdash config show (for effective values and sources)

# State/data directory holding the PID and log files (default: ~/.config/pmdash)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/pmdash/pmdash.db)
# db_path: {{ .DBPath }}

# HTTP server
port: {{ .Port }}
# Public URL prefix for uploaded file links (default: http://localhost:<port>)
base_url: "{{ .BaseURL }}"

# Uploaded attachments
blob_dir: "{{ .BlobDir }}"
blob:
  max_size_mb: {{ .BlobMaxSizeMB }}

# Bearer token verification. With no secret every request acts as service.user_id.
auth:
  jwt_secret: "{{ .JWTSecret }}"
  issuer: "{{ .Issuer }}"

# Identity used by the CLI, the MCP server and unauthenticated local requests
service:
  user_id: "{{ .ServiceUserID }}"

# QA enrichment and import
anthropic:
  model: "{{ .AnthropicModel }}"

# Remote server for 'pmdash board watch' (empty: local database)
server_url: "{{ .ServerURL }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	Port           int
	BaseURL        string
	BlobDir        string
	BlobMaxSizeMB  int
	JWTSecret      string
	Issuer         string
	ServiceUserID  string
	AnthropicModel string
	ServerURL      string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		Port:           viper.GetInt("port"),
		BaseURL:        viper.GetString("base_url"),
		BlobDir:        viper.GetString("blob_dir"),
		BlobMaxSizeMB:  viper.GetInt("blob.max_size_mb"),
		JWTSecret:      viper.GetString("auth.jwt_secret"),
		Issuer:         viper.GetString("auth.issuer"),
		ServiceUserID:  viper.GetString("service.user_id"),
		AnthropicModel: viper.GetString("anthropic.model"),
		ServerURL:      viper.GetString("server_url"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "PMDASH_STATE_DIR"},
	{Key: "db_path", EnvVar: "PMDASH_DB_PATH"},
	{Key: "port", EnvVar: "PMDASH_PORT"},
	{Key: "base_url", EnvVar: "PMDASH_BASE_URL"},
	{Key: "blob_dir", EnvVar: "PMDASH_BLOB_DIR"},
	{Key: "blob.max_size_mb", EnvVar: "PMDASH_BLOB_MAX_SIZE_MB"},
	{Key: "auth.jwt_secret", EnvVar: "PMDASH_AUTH_JWT_SECRET", Secret: true},
	{Key: "auth.issuer", EnvVar: "PMDASH_AUTH_ISSUER"},
	{Key: "service.user_id", EnvVar: "PMDASH_SERVICE_USER_ID"},
	{Key: "anthropic.api_key", EnvVar: "PMDASH_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "PMDASH_ANTHROPIC_MODEL"},
	{Key: "server_url", EnvVar: "PMDASH_SERVER_URL"},
	{Key: "token", EnvVar: "PMDASH_TOKEN", Secret: true},
}

// displayValue masks secrets that are set.
func displayValue(k configKeyInfo) any {
	val := viper.Get(k.Key)
	if k.Secret {
		if s, _ := val.(string); s != "" {
			return "********"
		}
	}
	return val
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, displayValue(k), source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'pmdash config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
