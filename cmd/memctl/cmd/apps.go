package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	appSecret string
	appOwner  string
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Register and authenticate client applications",
}

var registerCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register a new client application",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		registerApp(args[0])
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Authenticate and obtain a bearer token",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loginApp(args[0])
	},
}

func init() {
	rootCmd.AddCommand(appsCmd)
	appsCmd.AddCommand(registerCmd)
	appsCmd.AddCommand(loginCmd)

	registerCmd.Flags().StringVar(&appSecret, "secret", "", "application secret (min 8 characters)")
	registerCmd.Flags().StringVar(&appOwner, "owner", "", "default owner id for this application")
	registerCmd.MarkFlagRequired("secret")
	registerCmd.MarkFlagRequired("owner")

	loginCmd.Flags().StringVar(&appSecret, "secret", "", "application secret")
	loginCmd.MarkFlagRequired("secret")
}

func registerApp(name string) {
	data := request(http.MethodPost, "/api/v1/apps", map[string]string{
		"name":          name,
		"secret":        appSecret,
		"default_owner": appOwner,
	})

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	fmt.Printf("Application %q registered with default owner %q.\n", result["name"], result["default_owner"])
	fmt.Printf("To obtain a token, run: memctl apps login %s --secret <secret>\n", name)
}

func loginApp(name string) {
	data := request(http.MethodPost, "/api/v1/apps/login", map[string]string{
		"name":   name,
		"secret": appSecret,
	})

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	// Token on stdout so it can be captured: export MEMCTL_TOKEN=$(memctl apps login ...)
	fmt.Println(result.Token)
	fmt.Fprintf(os.Stderr, "Run: export MEMCTL_TOKEN=%s\n", result.Token)
}
