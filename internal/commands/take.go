package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/session"
	"golang.org/x/term"
)

var (
	takeBaseURL string
	takeBearer  string
)

var takeCmd = &cobra.Command{
	Use:   "take <exam-id>",
	Short: "Take an exam",
	Args:  cobra.ExactArgs(1),
	RunE:  runTake,
}

func init() {
	takeCmd.Flags().StringVar(&takeBaseURL, "base-url", "", "backend base URL (default $API_BASE_URL)")
	takeCmd.Flags().StringVar(&takeBearer, "bearer", "", "student bearer token (default $BEARER_TOKEN)")
}

func runTake(cmd *cobra.Command, args []string) error {
	examID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid exam ID %q: %w", args[0], err)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if takeBaseURL == "" {
		takeBaseURL = cfg.APIBaseURL
	}
	if takeBearer == "" {
		takeBearer = os.Getenv("BEARER_TOKEN")
	}
	if takeBearer == "" {
		return errors.New("no bearer token: pass --bearer or set BEARER_TOKEN")
	}

	client := api.NewClient(takeBaseURL, takeBearer, cfg.RequestTimeout)

	done := make(chan struct{})
	opts := session.OptionsFromConfig(cfg)
	opts.ConfirmSubmit = confirmUnanswered
	opts.OnTick = printRemaining
	opts.OnSubmitted = func(res *model.SubmissionResult) {
		fmt.Println()
		if res.Score != nil {
			fmt.Printf("Submitted. Score: %.1f\n", *res.Score)
		} else {
			fmt.Printf("Submitted. Submission ID: %s\n", res.SubmissionID)
		}
		close(done)
	}

	sess := session.New(client, opts, log)
	defer sess.Close()

	ctx := context.Background()

	phase, err := sess.Load(ctx, examID)
	if err != nil {
		return err
	}

	switch phase {
	case session.PhaseSubmitted:
		fmt.Println("This exam has already been submitted.")
		if res := sess.Store().Result(); res != nil && res.Score != nil {
			fmt.Printf("Score: %.1f\n", *res.Score)
		}
		return nil
	case session.PhaseAwaitingToken:
		if err := promptToken(ctx, sess); err != nil {
			return err
		}
		fallthrough
	case session.PhaseInstructions:
		showInstructions(sess)
		fmt.Print("Press Enter to start the exam... ")
		bufio.NewReader(os.Stdin).ReadString('\n')
		if err := sess.Begin(ctx); err != nil {
			return err
		}
	case session.PhaseInProgress:
		fmt.Println("Resuming your earlier attempt; saved answers were restored.")
	case session.PhaseErrored:
		return fmt.Errorf("loading exam: %s", sess.Store().ErrReason())
	}

	fmt.Printf("%d:%02d remaining. Type 'help' for commands.\n",
		int(sess.Store().Remaining().Minutes()), int(sess.Store().Remaining().Seconds())%60)

	return answerLoop(ctx, sess, done)
}

// promptToken asks for the entry token until the backend accepts it.
// Rejection is inline; the session stays on the token prompt.
func promptToken(ctx context.Context, sess *session.Session) error {
	for {
		token, err := readSecret("Entry token: ")
		if err != nil {
			return err
		}
		if token == "" {
			continue
		}
		if err := sess.EnterToken(ctx, token); err != nil {
			fmt.Printf("Token rejected: %v\n", err)
			continue
		}
		return nil
	}
}

// readSecret reads a line without echo when stdin is a terminal, falling
// back to plain reading otherwise (pipes, tests).
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func showInstructions(sess *session.Session) {
	store := sess.Store()
	fmt.Printf("\n=== %s ===\n", store.Title())
	if instructions := store.Instructions(); instructions != "" {
		fmt.Println(instructions)
	}
	fmt.Printf("Questions: %d\n", len(store.Questions()))
}

// printRemaining is the countdown tick hook: minute marks plus the final
// ten seconds.
func printRemaining(secondsLeft int) {
	if secondsLeft > 10 && secondsLeft%60 != 0 {
		return
	}
	fmt.Printf("\r[%d:%02d remaining] ", secondsLeft/60, secondsLeft%60)
}

func confirmUnanswered(unanswered int) bool {
	fmt.Printf("\n%d question(s) unanswered. Submit anyway? [y/N] ", unanswered)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// answerLoop reads commands from stdin until the session reaches a terminal
// phase, either by manual submit or by countdown auto-submit.
func answerLoop(ctx context.Context, sess *session.Session, done <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	questions := sess.Store().Questions()
	sort.Slice(questions, func(i, j int) bool { return questions[i].OrderNum < questions[j].OrderNum })
	listQuestions(sess, questions)

	phasePoll := time.NewTicker(500 * time.Millisecond)
	defer phasePoll.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-phasePoll.C:
			if phase := sess.Phase(); phase == session.PhaseErrored {
				return fmt.Errorf("session failed: %s", sess.Store().ErrReason())
			}
		case line, ok := <-lines:
			if !ok {
				// Stdin closed; keep waiting for auto-submit or failure.
				select {
				case <-done:
					return nil
				case <-time.After(sess.Store().Remaining() + 30*time.Second):
					return errors.New("session did not finish before timeout")
				}
			}
			if finished, err := handleCommand(ctx, sess, questions, line); finished {
				return err
			}
		}
	}
}

func handleCommand(ctx context.Context, sess *session.Session, questions []model.Question, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "help":
		fmt.Println("Commands: list | <question#> <answer> | submit | quit")
	case "list":
		listQuestions(sess, questions)
	case "submit":
		if err := sess.Submit(ctx); err != nil {
			if errors.Is(err, session.ErrSubmitDeclined) {
				return false, nil
			}
			return true, fmt.Errorf("submission failed: %s", sess.Store().ErrReason())
		}
		return true, nil
	case "quit":
		fmt.Println("Leaving without submitting; your attempt stays open.")
		return true, nil
	default:
		num, err := strconv.Atoi(fields[0])
		if err != nil || num < 1 || num > len(questions) || len(fields) < 2 {
			fmt.Println("Unrecognized command. Type 'help'.")
			return false, nil
		}
		value := strings.Join(fields[1:], " ")
		if err := sess.SetAnswer(questions[num-1].ID, value); err != nil {
			fmt.Printf("Cannot record answer: %v\n", err)
		}
	}
	return false, nil
}

func listQuestions(sess *session.Session, questions []model.Question) {
	answered := sess.Store().Snapshot()
	for i, q := range questions {
		marker := " "
		if _, ok := answered[q.ID]; ok {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s\n", marker, i+1, q.QuestionText)
		for _, opt := range q.Options {
			fmt.Printf("      [%s] %s\n", opt.ID, opt.Text)
		}
	}
}
