package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Typed flag lookups for flags registered in init(). A lookup can only fail
// on a name typo or a type mismatch, which is a programming error, so these
// panic rather than making every RunE thread flag errors around.

func mustGetBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("--%s: %v", name, err))
	}
	return v
}

func mustGetInt(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("--%s: %v", name, err))
	}
	return v
}

func mustGetString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("--%s: %v", name, err))
	}
	return v
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		panic(fmt.Sprintf("--%s: %v", name, err))
	}
	return v
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	v, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("--%s: %v", name, err))
	}
	return v
}
