package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "imagesieve",
	Short: "A CLI tool for grouping and searching similar images",
	Long: `Image Sieve scans a directory of images, extracts comparison features
(CLIP embeddings, color fingerprints, generation prompts, model provenance
or pixel dimensions) and incrementally groups similar files. Interrupted
scans resume from a checkpoint; finished corpora can be searched by
example image or free text.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
