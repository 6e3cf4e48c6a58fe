package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/protocol"
)

const hostHelp = `commands: load <file> | time <seconds> | start | reveal | advance | next | state | quit`

const joinHelp = `commands: answer <option-id|number> | state | quit`

// console serializes writes from the input loop and the snapshot hooks.
type console struct {
	mu        sync.Mutex
	out       io.Writer
	lastPhase domain.Phase
	lastIndex int
}

func newConsole(out io.Writer) *console {
	return &console{out: out, lastIndex: -1}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) sound(s protocol.Sound) {
	c.printf("* %s\n", s)
}

// snapshot prints the full view on phase or round changes and a one-line summary otherwise.
func (c *console) snapshot(state domain.GameState, self string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state.Phase != c.lastPhase || state.CurrentScenarioIndex != c.lastIndex {
		c.lastPhase = state.Phase
		c.lastIndex = state.CurrentScenarioIndex
		renderState(c.out, state, self)
		return
	}
	answered := 0
	for _, p := range state.Players {
		if p.HasAnswered() {
			answered++
		}
	}
	fmt.Fprintf(c.out, "[%s v%d] players %d, answered %d\n", state.Phase, state.Version, len(state.Players), answered)
}

func renderState(w io.Writer, state domain.GameState, self string) {
	fmt.Fprintf(w, "== room %s | %s | v%d ==\n", state.RoomCode, state.Phase, state.Version)
	switch state.Phase {
	case domain.PhaseLobby:
		fmt.Fprintf(w, "scenarios loaded: %d\n", len(state.Scenarios))
		for _, p := range state.Players {
			fmt.Fprintf(w, "  - %s%s\n", p.Name, selfMark(p.ID, self))
		}
	case domain.PhasePlaying:
		scenario, ok := state.CurrentScenario()
		if !ok {
			return
		}
		fmt.Fprintf(w, "round %d/%d, %ds\n", state.CurrentScenarioIndex+1, len(state.Scenarios), scenario.TimeLimit)
		if scenario.SituationContext != "" {
			fmt.Fprintf(w, "%s\n", scenario.SituationContext)
		}
		fmt.Fprintf(w, "%s: %q\n", scenario.OpponentName, scenario.NPCDialogue)
		for i, opt := range scenario.Options {
			fmt.Fprintf(w, "  %d) [%s] %s\n", i+1, opt.ID, opt.Text)
		}
	case domain.PhaseResultReveal:
		scenario, ok := state.CurrentScenario()
		if !ok {
			return
		}
		if best, ok := scenario.OptimalOption(); ok {
			fmt.Fprintf(w, "best reply: %s (%s)\n", best.Text, best.Strategy)
			if best.NPCReaction != "" {
				fmt.Fprintf(w, "%s: %q\n", scenario.OpponentName, best.NPCReaction)
			}
			if best.Explanation != "" {
				fmt.Fprintf(w, "why: %s\n", best.Explanation)
			}
		}
		for _, count := range state.AnswerDistribution() {
			fmt.Fprintf(w, "  %-12s %d\n", count.Strategy, count.Count)
		}
		if self != "" {
			if me, ok := state.Player(self); ok {
				if opt, ok := scenario.Option(me.LastAnswerID); ok {
					fmt.Fprintf(w, "you chose: %s (%s)\n", opt.Text, opt.Strategy)
				} else {
					fmt.Fprintln(w, "you did not answer")
				}
			}
		}
	case domain.PhaseLeaderboard, domain.PhaseFinished:
		if state.Phase == domain.PhaseFinished {
			fmt.Fprintln(w, "final standings")
		}
		for i, p := range state.Players {
			fmt.Fprintf(w, "  %d. %-16s %6d  streak %d%s\n", i+1, p.Name, p.Score, p.Streak, selfMark(p.ID, self))
		}
	}
}

func selfMark(id, self string) string {
	if self != "" && id == self {
		return " (you)"
	}
	return ""
}

// readCommands feeds trimmed, non-empty input lines to handle until it returns true, input ends,
// or ctx is done.
func readCommands(ctx context.Context, in io.Reader, handle func(line string) (quit bool)) {
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
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if handle(line) {
				return
			}
		}
	}
}

func hostCommand(host *app.Host, con *console, line string, timeLimit int) (quit bool) {
	fields := strings.Fields(line)
	var err error
	switch strings.ToLower(fields[0]) {
	case "load":
		if len(fields) < 2 {
			err = fmt.Errorf("usage: load <file>")
			break
		}
		var data []byte
		data, err = os.ReadFile(fields[1])
		if err != nil {
			break
		}
		var scenarios []domain.ScenarioNode
		scenarios, err = app.ParseScenarios(data, timeLimit)
		if err == nil {
			err = host.LoadScenarios(scenarios)
		}
	case "time":
		if len(fields) < 2 {
			err = fmt.Errorf("usage: time <seconds>")
			break
		}
		var seconds int
		seconds, err = strconv.Atoi(fields[1])
		if err == nil {
			err = host.SetTimeLimit(seconds)
		}
	case "start":
		err = host.Start()
	case "reveal":
		err = host.Reveal()
	case "advance":
		err = host.Advance()
	case "next":
		err = host.Next()
	case "state":
		con.mu.Lock()
		renderState(con.out, host.Snapshot(), "")
		con.mu.Unlock()
	case "quit", "exit":
		return true
	default:
		con.printf("%s\n", hostHelp)
	}
	if err != nil {
		con.printf("error: %v\n", err)
	}
	return false
}

func joinCommand(ctx context.Context, p *app.Participant, con *console, line string) (quit bool) {
	fields := strings.Fields(line)
	var err error
	switch strings.ToLower(fields[0]) {
	case "answer", "a":
		if len(fields) < 2 {
			err = fmt.Errorf("usage: answer <option-id|number>")
			break
		}
		err = p.Answer(ctx, resolveOption(p, fields[1]))
	case "state":
		state, ok := p.State()
		if !ok {
			err = fmt.Errorf("no game state received yet")
			break
		}
		con.mu.Lock()
		renderState(con.out, state, p.PlayerID())
		con.mu.Unlock()
	case "quit", "exit":
		return true
	default:
		con.printf("%s\n", joinHelp)
	}
	if err != nil {
		con.printf("error: %v\n", err)
	}
	return false
}

// resolveOption maps a 1-based option number to its id; anything else is taken as an id.
func resolveOption(p *app.Participant, arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg
	}
	state, ok := p.State()
	if !ok {
		return arg
	}
	scenario, ok := state.CurrentScenario()
	if !ok || n < 1 || n > len(scenario.Options) {
		return arg
	}
	return scenario.Options[n-1].ID
}
