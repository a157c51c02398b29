/*
Package runner drives a guided analysis from a terminal or a pipe.

It is the bridge between the analysis engine and the outside world. The runner
walks the guided plan, reports progress through a pluggable handler, persists
the final result set and, in interactive mode, offers to retry the categories
that failed.

# Key Components

  - Runner: runs the guided plan and the retry prompt.
  - IOHandler: decouples how progress and results are presented.
  - TextHandler: progress bars and a rendered report for humans.
  - JSONHandler: one JSON event per line for scripts.

# Usage

	r := runner.NewRunner(engine,
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithStore(store, "cli"),
	)

	rs, err := r.Run(ctx, ac)
	if err != nil {
		log.Fatal(err)
	}
*/
package runner
