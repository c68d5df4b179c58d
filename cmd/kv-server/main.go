// Command kv-server runs the TLS-authenticated, length-prefixed
// key-value service. The CLI tree mirrors the teacher cache server's
// cobra layout: the root command itself starts the listener, plus config
// and version introspection subcommands.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvservice/kv/internal/config"
	"github.com/kvservice/kv/internal/server"
	"github.com/kvservice/kv/internal/service"
	"github.com/kvservice/kv/internal/stats"
	"github.com/kvservice/kv/internal/store"
	"github.com/kvservice/kv/internal/transport"
)

var version = "1.0.0" // set during build with -ldflags

var rootCmd = &cobra.Command{
	Use:     "kv-server",
	Short:   "kv-server - a mutually-authenticated, networked key-value service",
	Version: version,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("kv-server v%s\n", version)
	fmt.Printf("listening on %s\n", cfg.Address())
	fmt.Printf("log level: %s\n", cfg.LogLevel)
	fmt.Println(strings.Repeat("=", 51))

	identity, err := loadIdentity(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS identity: %w", err)
	}
	clientCA, err := readOptionalFile(cfg.ClientCAFile)
	if err != nil {
		return fmt.Errorf("failed to read client CA bundle: %w", err)
	}
	acceptor, err := transport.NewServerAcceptor(identity, clientCA)
	if err != nil {
		return fmt.Errorf("failed to build TLS acceptor: %w", err)
	}

	memStore := store.NewMemoryStore()
	svc := service.New(memStore)
	st := stats.New()
	srv := server.New(cfg.Address(), acceptor, svc, st, cfg.ReadTimeout, cfg.WriteTimeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	<-sigChan
	fmt.Println("\nshutting down kv-server...")
	srv.Stop()
	fmt.Println("kv-server stopped")

	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Println(cfg.String())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kv-server v%s\n", version)
		fmt.Printf("built with Go %s\n", runtime.Version())
		fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("host", "H", "localhost", "Host to bind to")
	rootCmd.PersistentFlags().IntP("port", "p", 4343, "Port to listen on")
	rootCmd.PersistentFlags().String("cert", "", "Path to the server's PEM certificate chain")
	rootCmd.PersistentFlags().String("key", "", "Path to the server's PEM private key (PKCS#8 or RSA)")
	rootCmd.PersistentFlags().String("client-ca", "", "Path to a PEM client-CA bundle enabling mutual TLS auth")
	rootCmd.PersistentFlags().Bool("require-client-auth", false, "Stored in the config only; client certificates are required exactly when --client-ca is set")
	rootCmd.PersistentFlags().Int("max-clients", 10000, "Stored in the config and checked to be at least 1; concurrent connections are not limited")
	rootCmd.PersistentFlags().Duration("read-timeout", 0, "Read timeout; idle connections are closed after the larger of read and write timeout (30s when unset; 0 for both disables this)")
	rootCmd.PersistentFlags().Duration("write-timeout", 0, "Write timeout; idle connections are closed after the larger of read and write timeout (30s when unset; 0 for both disables this)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")

	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("cert_file", rootCmd.PersistentFlags().Lookup("cert"))
	viper.BindPFlag("key_file", rootCmd.PersistentFlags().Lookup("key"))
	viper.BindPFlag("client_ca_file", rootCmd.PersistentFlags().Lookup("client-ca"))
	viper.BindPFlag("require_client_auth", rootCmd.PersistentFlags().Lookup("require-client-auth"))
	viper.BindPFlag("max_clients", rootCmd.PersistentFlags().Lookup("max-clients"))
	viper.BindPFlag("read_timeout", rootCmd.PersistentFlags().Lookup("read-timeout"))
	viper.BindPFlag("write_timeout", rootCmd.PersistentFlags().Lookup("write-timeout"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
