package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/reactagent/internal/config"
)

// initProviders is the wizard's menu, local first.
var initProviders = []string{
	"ollama", "openai", "anthropic", "deepseek",
	"qwen", "kimi", "groq", "gemini",
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up reactagent: choose a provider, enter your API key, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), config.SaveProviderToFile)
		},
	}
}

func runInit(in io.Reader, out io.Writer, save func(string, config.ProviderConfig) error) error {
	reader := bufio.NewReader(in)
	readLine := func() string {
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	fmt.Fprintln(out, "Welcome to the reactagent configuration wizard!")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Available providers:")
	for i, p := range initProviders {
		fmt.Fprintf(out, "  %d. %s\n", i+1, p)
	}
	fmt.Fprintf(out, "\nSelect provider (1-%d) [1]: ", len(initProviders))

	selectedIdx := 0
	if input := readLine(); input != "" {
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(initProviders) {
			return fmt.Errorf("invalid selection %q", input)
		}
		selectedIdx = n - 1
	}
	name := initProviders[selectedIdx]
	fmt.Fprintf(out, "Selected: %s\n\n", name)

	var pc config.ProviderConfig
	if name == "ollama" {
		fmt.Fprintf(out, "Ollama base URL [%s]: ", config.KnownProviderBaseURLs["ollama"])
		pc.BaseURL = readLine()
	} else {
		fmt.Fprintf(out, "Enter API key for %s: ", name)
		pc.APIKey = readLine()
		if pc.APIKey == "" {
			return fmt.Errorf("API key cannot be empty")
		}
	}

	def := config.KnownProviderModels[name]
	fmt.Fprintf(out, "Model [%s]: ", def)
	pc.Model = readLine()

	if err := save(name, pc); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintln(out, "\nConfig saved.")
	fmt.Fprintln(out, "You can now run: reactagent")
	return nil
}
