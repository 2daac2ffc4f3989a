// speechctl is a command-line client for the speech service HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "speechctl",
		Short:   "Command-line client for the speech transcription service",
		Long:    "Upload audio files for speaker-attributed transcription or English translation, and inspect service health.",
		Version: version,
	}

	rootCmd.PersistentFlags().String("server", "", "server base URL (default $SPEECH_SERVER_URL or http://localhost:8000)")

	rootCmd.AddCommand(newTranscribeCmd())
	rootCmd.AddCommand(newTranslateCmd())
	rootCmd.AddCommand(newHealthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newTranscribeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file with speaker attribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)

			fields := map[string]string{}
			addOptionalString(cmd, fields, "strategy")
			addOptionalString(cmd, fields, "language")
			addOptionalString(cmd, fields, "model-size", "model_size")
			addOptionalInt(cmd, fields, "beam-size", "beam_size")
			addOptionalInt(cmd, fields, "num-speakers", "num_speakers")
			addOptionalInt(cmd, fields, "min-speakers", "min_speakers")
			addOptionalInt(cmd, fields, "max-speakers", "max_speakers")

			resp, err := client.UploadAudio("/api/transcribe", args[0], fields)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	c.Flags().String("strategy", "", "fusion strategy: slice or assign")
	c.Flags().String("language", "", "source language hint (ISO 639-1)")
	c.Flags().String("model-size", "", "recognizer model size (e.g. base, large-v2)")
	c.Flags().Int("beam-size", 0, "decoding beam width")
	c.Flags().Int("num-speakers", 0, "exact speaker count")
	c.Flags().Int("min-speakers", 0, "minimum speaker count")
	c.Flags().Int("max-speakers", 0, "maximum speaker count")
	return c
}

func newTranslateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "translate <audio-file>",
		Short: "Translate an audio file to English text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)

			fields := map[string]string{}
			addOptionalString(cmd, fields, "language")
			addOptionalString(cmd, fields, "model-size", "model_size")
			addOptionalInt(cmd, fields, "beam-size", "beam_size")

			resp, err := client.UploadAudio("/api/translate", args[0], fields)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	c.Flags().String("language", "", "source language hint (ISO 639-1)")
	c.Flags().String("model-size", "", "recognizer model size (e.g. base, large-v2)")
	c.Flags().Int("beam-size", 0, "decoding beam width")
	return c
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show provider health status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			resp, err := client.Get("/api/health/providers")
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}
