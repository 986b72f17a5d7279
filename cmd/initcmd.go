package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
)

var (
	initPath  string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default scan config file",
	Long:  `init writes a llmmap.yaml with every setting at its default value, as a starting point for customization. Credentials are never written; set them via env vars or --api-key.`,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initPath, "output", "o", "llmmap.yaml", "Where to write the config file")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if _, err := os.Stat(initPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", initPath)
		}
	}

	cfg := config.Default()
	cfg.LLM.Endpoint.URL = "http://localhost:8080/v1/chat/completions"
	if err := cfg.Save(initPath); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", initPath)
	return nil
}
