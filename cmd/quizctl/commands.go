package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quizforge/internal/auth"
	"quizforge/internal/player"
	"quizforge/internal/quiz"
)

type rootOptions struct {
	server            string
	token             string
	timeout           time.Duration
	maxInvalidAnswers int
}

func (o *rootOptions) config() player.Config {
	return player.Config{
		ServerURL:         o.server,
		Token:             o.token,
		HTTPTimeout:       o.timeout,
		MaxInvalidAnswers: o.maxInvalidAnswers,
	}
}

func (o *rootOptions) client() (*player.HTTPClient, error) {
	if strings.TrimSpace(o.token) == "" {
		return nil, errors.New("a session token is required (--token or QUIZ_TOKEN)")
	}
	return player.NewClientFromConfig(o.config()), nil
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "quizctl",
		Short: "Generate and play topic quizzes",
		Long: `quizctl talks to a running quiz-service.

Every command except "token" needs a session token, passed with --token or
the QUIZ_TOKEN environment variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("QUIZ_SERVER", player.DefaultServer), "quiz service base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("QUIZ_TOKEN"), "session token")
	flags.DurationVar(&opts.timeout, "timeout", 60*time.Second, "HTTP timeout")
	flags.IntVar(&opts.maxInvalidAnswers, "max-invalid", 3, "invalid answers allowed before a question is skipped")

	root.AddCommand(
		newGenerateCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newStatsCmd(opts),
		newPlayCmd(opts),
		newShellCmd(opts),
		newWhoamiCmd(opts),
		newTokenCmd(),
	)
	return root
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var difficulty string

	cmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Generate a new 10-question quiz",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := quiz.ParseDifficulty(strings.ToLower(difficulty))
			if !ok {
				return fmt.Errorf("difficulty must be easy, medium or hard, got %q", difficulty)
			}
			client, err := opts.client()
			if err != nil {
				return err
			}

			generated, err := client.GenerateQuiz(cmd.Context(), strings.Join(args, " "), level)
			if err != nil {
				return player.DescribeClientError(err, client.BaseURL())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "quiz_id=%s\n%s (%s)\n", generated.QuizID, generated.Topic, generated.Difficulty)
			for _, question := range generated.Questions {
				fmt.Fprintf(out, "\nQ%d: %s\n", question.ID, question.Question)
				for idx, option := range question.Options {
					fmt.Fprintf(out, "  %c. %s\n", 'A'+idx, option)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", string(quiz.DifficultyMedium), "easy, medium or hard")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your quizzes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			return player.ListQuizzes(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <quiz_id>",
		Short: "Show one quiz with its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			item, err := client.GetQuiz(cmd.Context(), args[0])
			if err != nil {
				return player.DescribeClientError(err, client.BaseURL())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) state=%s", item.Topic, item.Difficulty, item.State)
			if item.Graded() {
				fmt.Fprintf(out, " score=%d/%d", item.Score, item.Total)
			}
			fmt.Fprintln(out)
			for _, question := range item.Questions {
				fmt.Fprintf(out, "\nQ%d: %s\n", question.ID, question.Question)
				for idx, option := range question.Options {
					marker := " "
					if option == question.Answer {
						marker = "*"
					}
					fmt.Fprintf(out, " %s%c. %s\n", marker, 'A'+idx, option)
				}
			}
			return nil
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <quiz_id>",
		Short: "Delete one of your quizzes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.DeleteQuiz(cmd.Context(), args[0]); err != nil {
				return player.DescribeClientError(err, client.BaseURL())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted quiz %s.\n", args[0])
			return nil
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals over your submitted quizzes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			return player.PrintStats(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}
}

func newPlayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play <quiz_id>",
		Short: "Answer a quiz interactively and submit the score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			return player.Play(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), client, args[0], opts.maxInvalidAnswers)
		},
	}
}

func newShellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return player.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts.config())
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the synced profile for the current token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			return player.PrintUser(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}
}

// newTokenCmd mints a development session token for servers running
// without AUTH_JWKS_URL.
func newTokenCmd() *cobra.Command {
	var (
		secret  string
		issuer  string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 development session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.IssueHMACToken(secret, issuer, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_DEV_SECRET"), "shared HS256 secret")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("AUTH_ISSUER"), "issuer claim")
	cmd.Flags().StringVar(&subject, "subject", "", "external user id (sub claim)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
