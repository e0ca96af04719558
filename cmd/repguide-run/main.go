package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/claude/repguide/internal/session"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	routinePath := flag.String("routine", "", "path to routine YAML file")
	preview := flag.Bool("preview", false, "print the step sequence and exit")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repguide-run", Version)
		return
	}
	if *routinePath == "" {
		fmt.Fprintf(os.Stderr, "Usage: repguide-run -routine <file.yaml> [-preview]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	rt, names, err := loadRoutineFile(*routinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	steps := routine.Flatten(rt)
	if *preview {
		fmt.Printf("%s — %d steps, ~%s\n\n", rt.Name, len(steps),
			(time.Duration(rt.DurationEstimate()) * time.Second))
		for i, step := range steps {
			fmt.Printf("%3d. %s\n", i+1, describeStep(step, names))
		}
		return
	}

	if err := run(rt, steps, names); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// yamlPart is the file form of a routine part. A part with a "parts" list is
// a section; anything else is an activity, a rest when it has no name.
type yamlPart struct {
	Rounds    int        `yaml:"rounds"`
	Parts     []yamlPart `yaml:"parts"`
	Name      string     `yaml:"name"`
	Duration  int        `yaml:"duration"`
	Tempo     int        `yaml:"tempo"`
	Automatic bool       `yaml:"automatic"`
}

type yamlRoutine struct {
	Name  string     `yaml:"name"`
	Notes string     `yaml:"notes"`
	Parts []yamlPart `yaml:"parts"`
}

// loadRoutineFile reads a routine from YAML. Exercise names get synthetic IDs
// for the session; the returned map translates them back for display.
func loadRoutineFile(path string) (*routine.Routine, map[uuid.UUID]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading routine file: %w", err)
	}
	var yr yamlRoutine
	if err := yaml.Unmarshal(data, &yr); err != nil {
		return nil, nil, fmt.Errorf("parsing routine file: %w", err)
	}

	names := make(map[uuid.UUID]string)
	rt := &routine.Routine{ID: uuid.New(), Name: yr.Name, Notes: yr.Notes}
	for _, yp := range yr.Parts {
		rt.Parts = append(rt.Parts, buildPart(yp, names))
	}
	if err := rt.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid routine: %w", err)
	}
	return rt, names, nil
}

func buildPart(yp yamlPart, names map[uuid.UUID]string) *routine.Part {
	if len(yp.Parts) > 0 || yp.Rounds > 0 {
		children := make([]*routine.Part, 0, len(yp.Parts))
		for _, c := range yp.Parts {
			children = append(children, buildPart(c, names))
		}
		rounds := yp.Rounds
		if rounds == 0 {
			rounds = 1
		}
		return routine.NewSection(rounds, children...)
	}
	if yp.Name == "" {
		return routine.NewRest(yp.Duration, yp.Automatic)
	}
	id := uuid.New()
	names[id] = yp.Name
	return routine.NewExercise(id, yp.Duration, yp.Tempo, yp.Automatic)
}

func describeStep(step routine.Step, names map[uuid.UUID]string) string {
	label := "Rest"
	if step.Exercise != nil {
		label = names[*step.Exercise]
		if label == "" {
			label = step.Exercise.String()
		}
	}
	var attrs []string
	if step.Duration > 0 {
		attrs = append(attrs, (time.Duration(step.Duration) * time.Second).String())
	} else {
		attrs = append(attrs, "untimed")
	}
	if step.Automatic {
		attrs = append(attrs, "auto")
	}
	if ref, ok := step.InnermostSection(); ok {
		attrs = append(attrs, fmt.Sprintf("round %d", ref.Round+1))
	}
	return fmt.Sprintf("%s (%s)", label, strings.Join(attrs, ", "))
}

// run drives a session in the terminal. One goroutine owns the runner; stdin
// commands and ticker deltas arrive over channels.
func run(rt *routine.Routine, steps []routine.Step, names map[uuid.UUID]string) error {
	runner := session.NewRunner(rt.ID, 1, steps)
	if err := runner.Start(); err != nil {
		return err
	}

	fmt.Printf("%s — %d steps\n", rt.Name, runner.StepCount())
	fmt.Println("Commands: [enter] confirm, s skip, p pause, r resume, d defer, q quit")
	fmt.Println()

	commands := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			commands <- strings.TrimSpace(scanner.Text())
		}
		close(commands)
	}()

	ticker := time.NewTicker(session.DefaultTickInterval)
	defer ticker.Stop()

	last := time.Now()
	lastCursor := -1
	for runner.Phase() != session.PhaseCompleted {
		if runner.Cursor() != lastCursor {
			lastCursor = runner.Cursor()
			if step, ok := runner.Current(); ok {
				fmt.Printf("\n[%d/%d] %s\n", lastCursor+1, runner.StepCount(), describeStep(step, names))
			}
		}
		printStatus(runner)

		select {
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			if runner.Phase() == session.PhaseRunning {
				if err := runner.Tick(delta); err != nil {
					return err
				}
			}
		case cmd, ok := <-commands:
			if !ok || cmd == "q" {
				fmt.Println("\nSession abandoned.")
				printSummary(runner, names)
				return nil
			}
			if err := applyCommand(runner, cmd); err != nil {
				fmt.Printf("\n  ! %v\n", err)
			}
		}
	}

	fmt.Println("\nSession complete.")
	printSummary(runner, names)
	return nil
}

func applyCommand(runner *session.Runner, cmd string) error {
	switch cmd {
	case "":
		return runner.Confirm()
	case "s":
		return runner.Skip()
	case "p":
		return runner.Pause()
	case "r":
		return runner.Resume()
	case "d":
		return runner.DeferCurrent()
	default:
		return errors.New("unknown command " + cmd)
	}
}

func printStatus(runner *session.Runner) {
	step, ok := runner.Current()
	if !ok {
		return
	}
	state := ""
	if runner.Phase() == session.PhasePaused {
		state = " [paused]"
	}
	if step.Duration > 0 {
		fmt.Printf("\r  %s remaining%s   ", runner.Remaining().Round(time.Second), state)
	} else {
		fmt.Printf("\r  %s elapsed%s   ", runner.Elapsed().Round(time.Second), state)
	}
}

func printSummary(runner *session.Runner, names map[uuid.UUID]string) {
	history := runner.History()
	fmt.Println()
	fmt.Println("=== Session Summary ===")
	var total time.Duration
	skipped := 0
	for i, out := range history {
		mark := "done"
		if out.Skipped {
			mark = "skipped"
			skipped++
		}
		fmt.Printf("%3d. %-40s %8s  %s\n", i+1,
			describeStep(out.Step, names), out.Elapsed.Round(time.Second), mark)
		total += out.Elapsed
	}
	fmt.Printf("\n  Steps finished: %d of %d (%d skipped)\n", len(history), runner.StepCount(), skipped)
	fmt.Printf("  Total time:     %s\n", total.Round(time.Second))
}
