package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/vernacular/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		scanner := bufio.NewScanner(cmd.InOrStdin())

		fmt.Fprintln(out, "Vernacular Ops Setup")
		fmt.Fprintln(out, "Press Enter to accept the default value shown in brackets.")
		fmt.Fprintln(out)

		runSetup(scanner, out, cfg)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Configuration saved to", cfgPath)
		if !cfg.Auth.Configured() {
			fmt.Fprintln(out, "No identity API key set: logins will run in mock auth mode.")
		}
		return nil
	},
}

func runSetup(scanner *bufio.Scanner, out io.Writer, cfg *config.Config) {
	cfg.LLM.Provider = prompt(scanner, out, "LLM provider (openai or anthropic)", cfg.LLM.Provider)
	cfg.LLM.BaseURL = prompt(scanner, out, "LLM base URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = prompt(scanner, out, "LLM API key", cfg.LLM.APIKey)
	cfg.LLM.Model = prompt(scanner, out, "LLM model name", cfg.LLM.Model)

	maxTokens := prompt(scanner, out, "Max output tokens", strconv.Itoa(cfg.LLM.MaxTokens))
	if n, err := strconv.Atoi(maxTokens); err == nil {
		cfg.LLM.MaxTokens = n
	}
	timeout := prompt(scanner, out, "Analysis timeout (seconds)", strconv.Itoa(cfg.Analysis.TimeoutSeconds))
	if n, err := strconv.Atoi(timeout); err == nil && n > 0 {
		cfg.Analysis.TimeoutSeconds = n
	}

	cfg.Auth.APIKey = prompt(scanner, out, "Firebase web API key (optional)", cfg.Auth.APIKey)
	cfg.Telegram.Token = prompt(scanner, out, "Telegram bot token (optional)", cfg.Telegram.Token)
	cfg.Web.Addr = prompt(scanner, out, "Web listen address", cfg.Web.Addr)
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, out io.Writer, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return defaultVal
}
