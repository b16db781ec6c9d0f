package player

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quizforge/internal/quiz"
)

// promptAnswer reads one answer letter. ok is false for unusable input; err
// is set only when nothing more can be read.
func promptAnswer(reader *bufio.Reader, out io.Writer, optionCount int) (string, bool, error) {
	if optionCount < 1 {
		return "", false, nil
	}

	maxLetter := byte('A' + optionCount - 1)
	fmt.Fprintf(out, "Your answer (A-%c): ", maxLetter)

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", false, err
	}

	answer := strings.ToUpper(strings.TrimSpace(line))
	if len(answer) != 1 {
		return "", false, nil
	}
	letter := answer[0]
	if letter < 'A' || letter > maxLetter {
		return "", false, nil
	}

	return answer, true, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  help")
	fmt.Fprintln(out, "  quizzes")
	fmt.Fprintln(out, "  generate <easy|medium|hard> <topic>")
	fmt.Fprintln(out, "  play <quiz_id>")
	fmt.Fprintln(out, "  delete <quiz_id>")
	fmt.Fprintln(out, "  stats")
	fmt.Fprintln(out, "  whoami")
	fmt.Fprintln(out, "  exit")
}

// parseGenerateArgs reads "generate <difficulty> <topic words...>".
func parseGenerateArgs(args []string) (quiz.Difficulty, string, error) {
	if len(args) < 3 {
		return "", "", errors.New("usage: generate <easy|medium|hard> <topic>")
	}
	difficulty, ok := quiz.ParseDifficulty(strings.ToLower(args[1]))
	if !ok {
		return "", "", fmt.Errorf("difficulty must be easy, medium or hard, got %q", args[1])
	}
	return difficulty, strings.Join(args[2:], " "), nil
}

func promptYesNo(reader *bufio.Reader, out io.Writer, prompt string) (bool, error) {
	for {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(out, "Please answer yes or no.")
		}
	}
}

func DescribeClientError(err error, serverURL string) error {
	if errors.Is(err, ErrServiceUnavailable) {
		return fmt.Errorf("quiz service unavailable at %s", serverURL)
	}
	if IsStatus(err, http.StatusUnauthorized) {
		return fmt.Errorf("%w (check --token)", err)
	}
	return err
}

func optionLetter(index int) string {
	return string(rune('A' + index))
}

func correctAnswerDisplay(question quiz.Question) string {
	for idx, option := range question.Options {
		if option == question.Answer {
			return fmt.Sprintf("%s. %s", optionLetter(idx), option)
		}
	}
	if strings.TrimSpace(question.Answer) == "" {
		return "unknown"
	}
	return question.Answer
}

func formatPercent(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64) + "%"
}

func formatQuizLine(idx int, item QuizView) string {
	status := "not submitted"
	if item.Graded() {
		status = fmt.Sprintf("score %d/%d", item.Score, item.Total)
	}
	return fmt.Sprintf("%d. %s [%s] %s (%s, created %s)",
		idx+1,
		item.ID,
		item.Difficulty,
		item.Topic,
		status,
		item.CreatedAt.Format(time.RFC3339),
	)
}
