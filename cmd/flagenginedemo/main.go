// Command flagenginedemo is a small CLI wrapper over the flagengine SDK:
// evaluate a flag, list treatments, or fire a track() event against a live
// (or localhost-mode) instance, the same shape as the teacher's single-binary
// CLI over its engine package.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/99souls/flagengine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	apiKey       string
	localhostDir string
	jsonOutput   bool
)

var rootCmd = &cobra.Command{
	Use:   "flagenginedemo",
	Short: "Evaluate and track flags against a flagengine instance",
	Long: `flagenginedemo is a demonstration CLI for the flagengine SDK.

It builds one Factory-backed Client per invocation, waits for the initial
sync, runs the requested operation, then destroys the client cleanly.

Examples:
  flagenginedemo evaluate --key user123 demo_flag
  flagenginedemo treatments --key user123 flag_a flag_b
  flagenginedemo track --key user123 --event purchase --value 9.99`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "SDK API key (env FLAGENGINE_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&localhostDir, "localhost-file", "", "path to a localhost-mode flag/segment YAML file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")

	rootCmd.AddCommand(evaluateCmd, treatmentsCmd, trackCmd)
}

func loadConfig() (flagengine.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLAGENGINE")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return flagengine.Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := flagengine.Defaults()

	key := apiKey
	if key == "" {
		key = v.GetString("api_key")
	}
	cfg.APIKey = key

	if localhostDir != "" {
		cfg.OperationMode = flagengine.ModeLocalhost
		cfg.LocalhostFilePath = localhostDir
	}

	if sdkURL := v.GetString("urls.sdk"); sdkURL != "" {
		cfg.URLs.SDKURL = sdkURL
	}
	if eventsURL := v.GetString("urls.events"); eventsURL != "" {
		cfg.URLs.EventsURL = eventsURL
	}
	if authURL := v.GetString("urls.auth"); authURL != "" {
		cfg.URLs.AuthURL = authURL
	}
	if streamingURL := v.GetString("urls.streaming"); streamingURL != "" {
		cfg.URLs.StreamingURL = streamingURL
	}

	return cfg, nil
}

func newClient() (*flagengine.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, _, err := flagengine.Factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}
	return client, nil
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <flag>",
	Short: "Resolve a single flag for a matching key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		client, err := newClient()
		if err != nil {
			return err
		}
		defer func() { _ = client.Destroy() }()

		treatment := client.GetTreatment(key, "", args[0], nil)
		return emit(map[string]string{"flag": args[0], "treatment": treatment})
	},
}

var treatmentsCmd = &cobra.Command{
	Use:   "treatments <flag...>",
	Short: "Resolve a batch of flags for a matching key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		client, err := newClient()
		if err != nil {
			return err
		}
		defer func() { _ = client.Destroy() }()

		results := client.GetTreatments(key, "", args, nil)
		return emit(results)
	},
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Fire a track() event",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		trafficType, _ := cmd.Flags().GetString("traffic-type")
		eventType, _ := cmd.Flags().GetString("event")
		value, hasValue, err := eventValue(cmd)
		if err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		defer func() { _ = client.Destroy() }()

		if err := client.Track(key, trafficType, eventType, value, nil); err != nil {
			return fmt.Errorf("track: %w", err)
		}
		return emit(map[string]interface{}{"tracked": true, "event": eventType, "hasValue": hasValue})
	},
}

func eventValue(cmd *cobra.Command) (*float64, bool, error) {
	v, err := cmd.Flags().GetFloat64("value")
	if err != nil {
		return nil, false, err
	}
	if cmd.Flags().Changed("value") {
		return &v, true, nil
	}
	return nil, false, nil
}

func init() {
	for _, c := range []*cobra.Command{evaluateCmd, treatmentsCmd, trackCmd} {
		c.Flags().String("key", "", "matching key (required)")
		_ = c.MarkFlagRequired("key")
	}
	trackCmd.Flags().String("traffic-type", "user", "traffic type name")
	trackCmd.Flags().String("event", "", "event type id (required)")
	trackCmd.Flags().Float64("value", 0, "optional numeric event value")
	_ = trackCmd.MarkFlagRequired("event")
}

func emit(v interface{}) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		<-ctx.Done()
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
