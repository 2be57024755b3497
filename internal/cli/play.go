package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"theory-battle/internal/app"
	"theory-battle/internal/domain"
	pginfra "theory-battle/internal/infra/postgres"
	"theory-battle/internal/logging"
	"theory-battle/internal/transport/wsclient"
)

type playOptions struct {
	user   string
	name   string
	avatar string
	auto   float64
}

// NewPlayCmd joins a battle from the terminal through the relay.
func NewPlayCmd(configPath *string) *cobra.Command {
	var opts playOptions
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Find an opponent and play a theory battle in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.user, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name (defaults to the user id)")
	cmd.Flags().StringVar(&opts.avatar, "avatar", "", "avatar URL shown to the opponent")
	cmd.Flags().Float64Var(&opts.auto, "auto", -1, "answer automatically with this accuracy (0-1) instead of reading stdin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runPlay(ctx context.Context, configPath string, opts playOptions, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Relay.URL == "" {
		return errors.New("relay url not configured")
	}
	log := logging.New(serviceName+"-client", cfg.Log.Level)
	log.SetOutput(io.Discard)
	if cfg.Log.Level == "debug" {
		log.SetOutput(out)
	}

	me := domain.Player{ID: opts.user, Name: opts.name, AvatarURL: opts.avatar}
	if me.Name == "" {
		me.Name = me.ID
	}

	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	pg, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}

	var recorder app.MatchRecorder
	if pg != nil {
		defer pg.Close()
		recorder = pginfra.NewMatchStore(pg)
	} else {
		history, err := wsclient.NewHistoryClient(cfg.Relay.URL)
		if err != nil {
			return err
		}
		recorder = history
	}

	client, err := wsclient.Dial(ctx, cfg.Relay.URL, me.ID, log)
	if err != nil {
		fmt.Fprintln(out, app.StatusText(domain.ErrLobbyUnavailable))
		return err
	}
	defer client.Close()

	battleCfg, botCfg := battleConfig(cfg)
	var answerer app.Answerer
	if opts.auto >= 0 {
		answerer = autoAnswerer(app.NewBot(app.BotConfig{Accuracy: opts.auto, ThinkMin: botCfg.ThinkMin, ThinkMax: botCfg.ThinkMax}, nil))
	} else {
		answerer = newTerminalAnswerer(ctx, in, out)
	}

	printer := &battlePrinter{out: out}
	coordinator := app.NewCoordinator(client, questionPool(cfg, rdb, pg, log), app.NewBot(botCfg, nil), battleCfg, log,
		app.WithRecorder(recorder),
		app.WithStatus(func(line string) { fmt.Fprintln(out, line) }),
		app.WithObserver(printer.observe),
	)
	_, err = coordinator.Play(ctx, me, answerer)
	return err
}

// terminalAnswerer prompts on out and reads option numbers from in.
type terminalAnswerer struct {
	out   io.Writer
	lines <-chan string
}

func newTerminalAnswerer(ctx context.Context, in io.Reader, out io.Writer) *terminalAnswerer {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return &terminalAnswerer{out: out, lines: lines}
}

func (a *terminalAnswerer) Answer(ctx context.Context, s app.BattleState) (int, error) {
	q := s.Question
	fmt.Fprintf(a.out, "\nQuestion %d/%d", s.QuestionIndex+1, s.TotalQuestions)
	if q.Category != "" {
		fmt.Fprintf(a.out, " [%s]", q.Category)
	}
	fmt.Fprintf(a.out, "\n%s\n", q.Text)
	for i, o := range q.Options {
		fmt.Fprintf(a.out, "  %d) %s\n", i+1, optionLabel(o))
	}
	for {
		fmt.Fprint(a.out, "> ")
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case line, ok := <-a.lines:
			if !ok {
				return 0, io.EOF
			}
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || n < 1 || n > len(q.Options) {
				fmt.Fprintf(a.out, "Enter a number between 1 and %d\n", len(q.Options))
				continue
			}
			return n - 1, nil
		}
	}
}

func optionLabel(o domain.Option) string {
	if o.Text != "" {
		return o.Text
	}
	return o.ImageURL
}

// autoAnswerer plays with a bot's accuracy and thinking time.
func autoAnswerer(bot *app.Bot) app.Answerer {
	return app.AnswerFunc(func(ctx context.Context, s app.BattleState) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(bot.ThinkingDelay()):
		}
		return bot.Answer(*s.Question), nil
	})
}

// battlePrinter renders round results and bot chat as they change.
type battlePrinter struct {
	out       io.Writer
	lastRound int
	lastChat  string
	printed   bool
}

func (p *battlePrinter) observe(s app.BattleState) {
	if s.BotChat != "" && s.BotChat != p.lastChat {
		p.lastChat = s.BotChat
		fmt.Fprintf(p.out, "%s: %q\n", s.Opponent.Name, s.BotChat)
	}
	if s.Phase != app.PhaseRoundOver || s.LastRound == nil {
		return
	}
	if p.printed && s.LastRound.Index == p.lastRound {
		return
	}
	p.printed = true
	p.lastRound = s.LastRound.Index

	r := s.LastRound
	verdict := "Wrong"
	if r.PlayerCorrect {
		verdict = "Correct"
	}
	fmt.Fprintf(p.out, "%s! Answer: %d. %s answered %d. Score %d-%d\n",
		verdict, r.CorrectAnswer+1, s.Opponent.Name, r.OpponentAnswer+1, s.PlayerScore, s.OpponentScore)
	if s.Question != nil && s.Question.Explanation != "" {
		fmt.Fprintln(p.out, s.Question.Explanation)
	}
}
