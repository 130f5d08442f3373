package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for codebrief configuration",
	Long:  `Creates a default configuration file with guided prompts.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to codebrief setup!")
	fmt.Println("This will create a configuration file for you.")
	fmt.Println()

	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file already exists at %s\n", configPath)
		if !ask(reader, "Overwrite? [y/N]: ", "n") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	in := initAnswers{
		Token:         prompt(reader, "GitHub token env var (or press Enter for GITHUB_TOKEN): ", "GITHUB_TOKEN"),
		EmbedProvider: prompt(reader, "Embedding provider (openai/ollama/gemini) [openai]: ", "openai"),
		LLMProvider:   prompt(reader, "LLM provider (openai/anthropic/ollama/gemini) [openai]: ", "openai"),
		StoreDriver:   prompt(reader, "Store driver (sqlite/postgres) [sqlite]: ", "sqlite"),
		CacheType:     prompt(reader, "Commit summary cache (memory/redis/none) [memory]: ", "memory"),
		SlackURL:      prompt(reader, "Slack webhook URL (or press Enter to skip): ", ""),
		DiscordURL:    prompt(reader, "Discord webhook URL (or press Enter to skip): ", ""),
	}

	config := buildConfigYAML(in)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(config), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", configPath)
	fmt.Println("Edit the file to add API keys and customize settings.")
	return nil
}

func prompt(reader *bufio.Reader, question, def string) string {
	fmt.Print(question)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

func ask(reader *bufio.Reader, question, def string) bool {
	answer := strings.ToLower(prompt(reader, question, def))
	return answer == "y" || answer == "yes"
}

// initAnswers are the choices gathered by init.
type initAnswers struct {
	Token         string // name of the env var holding the GitHub token
	EmbedProvider string
	LLMProvider   string
	StoreDriver   string
	CacheType     string
	SlackURL      string
	DiscordURL    string
}

func buildConfigYAML(in initAnswers) string {
	var b strings.Builder

	b.WriteString("# codebrief configuration\n")
	b.WriteString("# ${VAR} placeholders are read from the environment (and .env).\n\n")

	b.WriteString("github:\n")
	b.WriteString("  auth: token\n")
	if in.Token != "" {
		b.WriteString(fmt.Sprintf("  token: ${%s}\n", in.Token))
	}
	b.WriteString("  # auth: app\n")
	b.WriteString("  # app_id: YOUR_APP_ID\n")
	b.WriteString("  # installation_id: YOUR_INSTALLATION_ID\n")
	b.WriteString("  # private_key_path: /path/to/private-key.pem\n")
	b.WriteString("  requests_per_second: 10\n")
	b.WriteString("\n")

	b.WriteString("providers:\n")
	b.WriteString("  embedding:\n")
	b.WriteString(fmt.Sprintf("    type: %s\n", in.EmbedProvider))
	embedModel, embedAPIKey := embeddingProviderDefaults(in.EmbedProvider)
	b.WriteString(fmt.Sprintf("    model: %s\n", embedModel))
	b.WriteString(fmt.Sprintf("    api_key: %s\n", embedAPIKey))
	b.WriteString("  llm:\n")
	b.WriteString(fmt.Sprintf("    type: %s\n", in.LLMProvider))
	llmModel, llmAPIKey := llmProviderDefaults(in.LLMProvider)
	b.WriteString(fmt.Sprintf("    model: %s\n", llmModel))
	b.WriteString(fmt.Sprintf("    api_key: %s\n", llmAPIKey))
	b.WriteString("\n")

	b.WriteString("store:\n")
	if in.StoreDriver == "postgres" {
		b.WriteString("  driver: postgres\n")
		b.WriteString("  dsn: ${DATABASE_URL}\n")
	} else {
		b.WriteString("  driver: sqlite\n")
		b.WriteString("  path: ~/.codebrief/codebrief.db\n")
	}
	b.WriteString("\n")

	b.WriteString("cache:\n")
	b.WriteString(fmt.Sprintf("  type: %s\n", in.CacheType))
	if in.CacheType == "redis" {
		b.WriteString("  addr: localhost:6379\n")
		b.WriteString("  # password: <redis password>\n")
	}
	b.WriteString("\n")

	b.WriteString("retry:\n")
	b.WriteString("  base: 1s\n")
	b.WriteString("  max_delay: 60s\n")
	b.WriteString("  jitter_factor: 0.2\n")
	b.WriteString("  max_attempts: 10\n")
	b.WriteString("\n")

	b.WriteString("ingest:\n")
	b.WriteString("  batch_size: 3\n")
	b.WriteString("  timeout: 30s\n")
	b.WriteString("  batch_delay: 10s\n")
	b.WriteString("  min_batch_delay: 1s\n")
	b.WriteString("  save_concurrency: 8\n")
	b.WriteString("\n")

	b.WriteString("retrieval:\n")
	b.WriteString("  threshold: 0.5\n")
	b.WriteString("  top_k: 10\n")
	b.WriteString("\n")

	b.WriteString("commits:\n")
	b.WriteString("  limit: 10\n")
	b.WriteString("  poll_interval: 5m\n")
	b.WriteString("  summary_ttl: 1h\n")
	b.WriteString("\n")

	b.WriteString("server:\n")
	b.WriteString("  addr: \":8080\"\n")
	b.WriteString("\n")

	b.WriteString("notify:\n")
	if in.SlackURL != "" {
		b.WriteString(fmt.Sprintf("  slack_webhook: %s\n", in.SlackURL))
	} else {
		b.WriteString("  # slack_webhook: https://hooks.slack.com/services/...\n")
	}
	if in.DiscordURL != "" {
		b.WriteString(fmt.Sprintf("  discord_webhook: %s\n", in.DiscordURL))
	} else {
		b.WriteString("  # discord_webhook: https://discord.com/api/webhooks/...\n")
	}

	return b.String()
}

// embeddingProviderDefaults returns the default model and api_key placeholder
// for the given embedding provider type.
func embeddingProviderDefaults(provider string) (model, apiKey string) {
	switch provider {
	case "ollama":
		return "nomic-embed-text", "# not required for ollama"
	case "gemini":
		return "text-embedding-004", "${GEMINI_API_KEY}"
	default: // openai
		return "text-embedding-3-small", "${OPENAI_API_KEY}"
	}
}

// llmProviderDefaults returns the default model and api_key placeholder
// for the given LLM provider type.
func llmProviderDefaults(provider string) (model, apiKey string) {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-20250514", "${ANTHROPIC_API_KEY}"
	case "ollama":
		return "llama3.1:8b", "# not required for ollama"
	case "gemini":
		return "gemini-2.5-flash", "${GEMINI_API_KEY}"
	default: // openai
		return "gpt-4o-mini", "${OPENAI_API_KEY}"
	}
}
