package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	authToken  string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "A CLI client to interact with the memory service",
	Long:  `A command-line interface for storing, searching and managing memories over the memory service HTTP API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8080", "base address of the memory service")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (defaults to $MEMCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "owner id to act on (defaults to the app's default owner)")
}

// token returns the bearer token from the flag or the environment.
func token() string {
	if authToken != "" {
		return authToken
	}
	return os.Getenv("MEMCTL_TOKEN")
}
