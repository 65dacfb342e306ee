package cli

import (
	"time"

	"github.com/spf13/cobra"

	"carbon-quiz/internal/chat"
	"carbon-quiz/internal/client"
	"carbon-quiz/internal/config"
	"carbon-quiz/internal/session"
	"carbon-quiz/internal/submission"
	"carbon-quiz/internal/tui"
)

// NewPlayCmd runs a terminal session against a running server.
func NewPlayCmd(configPath *string) *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take the quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if baseURL == "" {
				baseURL = cfg.Client.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			timeout := config.TTLDuration(cfg.Client.Timeout, 15*time.Second)
			api := client.New(baseURL, timeout)
			assistant := client.NewAssistant(cfg.Assistant.URL, config.TTLDuration(cfg.Assistant.Timeout, 30*time.Second))

			// the terminal owns stdout, so the engine stays quiet
			sess := session.New(api, submission.NewPipeline(api, nil),
				session.WithAutoAdvance(config.TTLDuration(cfg.Client.AutoAdvance, session.DefaultAutoAdvance)),
				session.WithContext(cmd.Context()))
			defer sess.Close()
			conv := chat.NewConversation(assistant, sess, nil)

			return tui.Run(cmd.Context(), sess, conv)
		},
	}
	cmd.Flags().StringVar(&baseURL, "server", "", "base URL of the quiz server")
	return cmd
}
