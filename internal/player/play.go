package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrInputClosed means answers stopped arriving before the quiz was finished.
// The score is not submitted in that case.
var ErrInputClosed = errors.New("input closed; quiz not submitted")

const (
	defaultHTTPTimeout       = 60 * time.Second
	defaultMaxInvalidAnswers = 3
)

type Config struct {
	ServerURL         string
	Token             string
	MaxInvalidAnswers int
	HTTPTimeout       time.Duration
}

func (cfg Config) withDefaults() Config {
	cfg.ServerURL = strings.TrimSpace(cfg.ServerURL)
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServer
	}
	if cfg.MaxInvalidAnswers <= 0 {
		cfg.MaxInvalidAnswers = defaultMaxInvalidAnswers
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	return cfg
}

// NewClientFromConfig builds the HTTP client used by every command.
func NewClientFromConfig(cfg Config) *HTTPClient {
	cfg = cfg.withDefaults()
	return NewHTTPClient(cfg.ServerURL, cfg.Token, &http.Client{Timeout: cfg.HTTPTimeout})
}

// Run is the interactive shell: it reads commands from in until "exit" or EOF.
func Run(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Token) == "" {
		return errors.New("token is required")
	}

	client := NewClientFromConfig(cfg)
	reader := bufio.NewReader(in)

	fmt.Fprintf(out, "quizforge\nserver=%s\n\n", cfg.ServerURL)
	printHelp(out)

	for {
		fmt.Fprint(out, "\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		command := strings.ToLower(args[0])

		switch command {
		case "help":
			printHelp(out)
		case "exit", "quit":
			return nil
		case "quizzes":
			if err := ListQuizzes(ctx, out, client); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		case "generate":
			difficulty, topic, parseErr := parseGenerateArgs(args)
			if parseErr != nil {
				fmt.Fprintln(out, parseErr)
				continue
			}
			generated, err := client.GenerateQuiz(ctx, topic, difficulty)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", DescribeClientError(err, client.BaseURL()))
				continue
			}
			fmt.Fprintf(out, "Generated quiz %s (%s, %s, %d questions)\n", generated.QuizID, generated.Topic, generated.Difficulty, generated.Total)

			playNow, promptErr := promptYesNo(reader, out, "play it now? (yes/no): ")
			if promptErr != nil {
				return promptErr
			}
			if playNow {
				if err := playWithReader(ctx, reader, out, client, generated.QuizID, cfg.MaxInvalidAnswers); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		case "play":
			if len(args) != 2 {
				fmt.Fprintln(out, "usage: play <quiz_id>")
				continue
			}
			if err := playWithReader(ctx, reader, out, client, args[1], cfg.MaxInvalidAnswers); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		case "delete":
			if len(args) != 2 {
				fmt.Fprintln(out, "usage: delete <quiz_id>")
				continue
			}
			if err := client.DeleteQuiz(ctx, args[1]); err != nil {
				fmt.Fprintf(out, "error: %v\n", DescribeClientError(err, client.BaseURL()))
				continue
			}
			fmt.Fprintf(out, "Deleted quiz %s.\n", args[1])
		case "stats":
			if err := PrintStats(ctx, out, client); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		case "whoami":
			if err := PrintUser(ctx, out, client); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		default:
			fmt.Fprintln(out, "unknown command. type 'help' for usage.")
		}
	}
}

func ListQuizzes(ctx context.Context, out io.Writer, client *HTTPClient) error {
	quizzes, err := client.ListQuizzes(ctx)
	if err != nil {
		return DescribeClientError(err, client.BaseURL())
	}

	if len(quizzes) == 0 {
		fmt.Fprintln(out, "No quizzes yet.")
		return nil
	}

	fmt.Fprintln(out, "Your quizzes:")
	for idx, item := range quizzes {
		fmt.Fprintln(out, formatQuizLine(idx, item))
	}
	return nil
}

func PrintStats(ctx context.Context, out io.Writer, client *HTTPClient) error {
	stats, err := client.Stats(ctx)
	if err != nil {
		return DescribeClientError(err, client.BaseURL())
	}

	fmt.Fprintf(out, "Quizzes: %d (%d submitted)\n", stats.TotalQuizzes, stats.GradedQuizzes)
	fmt.Fprintf(out, "Points: %d/%d\n", stats.TotalScore, stats.TotalPossible)
	fmt.Fprintf(out, "Average: %s\n", formatPercent(stats.AveragePercent))
	fmt.Fprintf(out, "Best: %s\n", formatPercent(stats.BestPercent))
	return nil
}

func PrintUser(ctx context.Context, out io.Writer, client *HTTPClient) error {
	user, err := client.SyncUser(ctx)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return errors.New("your account has not been synced yet; try again shortly")
		}
		return DescribeClientError(err, client.BaseURL())
	}

	name := user.Name
	if name == "" {
		name = "(no name)"
	}
	fmt.Fprintf(out, "%s <%s>\nid=%s\n", name, user.Email, user.ID)
	return nil
}

// Play runs one quiz interactively and submits the final score once.
func Play(ctx context.Context, in io.Reader, out io.Writer, client *HTTPClient, quizID string, maxInvalidAnswers int) error {
	if maxInvalidAnswers <= 0 {
		maxInvalidAnswers = defaultMaxInvalidAnswers
	}
	return playWithReader(ctx, bufio.NewReader(in), out, client, quizID, maxInvalidAnswers)
}

func playWithReader(ctx context.Context, reader *bufio.Reader, out io.Writer, client *HTTPClient, quizID string, maxInvalidAnswers int) error {
	item, err := client.GetQuiz(ctx, quizID)
	if err != nil {
		return DescribeClientError(err, client.BaseURL())
	}

	if item.Graded() {
		fmt.Fprintf(out, "quiz %s is already submitted.\nScore: %d/%d\n", item.ID, item.Score, item.Total)
		return nil
	}

	session, err := NewSession(item.ID, item.Questions)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (%s)\n", item.Topic, item.Difficulty)
	for idx := 0; idx < session.Total(); idx++ {
		question, _ := session.Question(idx)
		printQuestion(out, idx+1, question.Question, question.Options)

		invalidCount := 0
		for {
			answer, ok, err := promptAnswer(reader, out, len(question.Options))
			if err != nil {
				fmt.Fprintln(out)
				return fmt.Errorf("%w: %v", ErrInputClosed, err)
			}
			if !ok {
				invalidCount++
				if invalidCount >= maxInvalidAnswers {
					if _, err := session.Skip(idx); err != nil {
						return err
					}
					fmt.Fprintf(out, "Skipping. Correct answer was %s\n", correctAnswerDisplay(question))
					break
				}
				fmt.Fprintf(out, "Invalid input. Attempts remaining: %d\n", maxInvalidAnswers-invalidCount)
				continue
			}

			outcome, err := session.Answer(idx, question.Options[int(answer[0]-'A')])
			if err != nil {
				return err
			}
			if outcome.Correct {
				fmt.Fprintln(out, "Correct!")
			} else {
				fmt.Fprintf(out, "Wrong. Correct answer was %s\n", correctAnswerDisplay(question))
			}
			break
		}
	}

	return submitSession(ctx, out, client, session)
}

func submitSession(ctx context.Context, out io.Writer, client *HTTPClient, session *Session) error {
	score, err := session.Submission()
	if err != nil {
		return err
	}

	graded, err := client.SubmitScore(ctx, session.QuizID(), score)
	if err != nil {
		if IsStatus(err, http.StatusBadRequest) && strings.Contains(err.Error(), "already submitted") {
			session.MarkSubmitted()
			fmt.Fprintln(out, "\nThis quiz was already submitted; your new answers were not recorded.")
			return nil
		}
		return DescribeClientError(err, client.BaseURL())
	}
	session.MarkSubmitted()

	fmt.Fprintf(out, "\nFinal score: %d/%d\n", graded.Score, graded.Total)
	return nil
}

func printQuestion(out io.Writer, number int, text string, options []string) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Q%d: %s\n\n", number, text)
	for idx, option := range options {
		fmt.Fprintf(out, "%s. %s\n", optionLetter(idx), option)
	}
	fmt.Fprintln(out)
}
