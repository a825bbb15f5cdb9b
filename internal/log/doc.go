// Package log builds the structured loggers used by imgopt on top of the
// standard slog package.
//
// A run writes to two sinks at once:
//   - the log file, an append-only text stream with timestamps, levels, and
//     attributes, which also receives the raw output of the optimizers
//   - the console, which shows only the message and attributes, colored by
//     level when attached to a terminal
//
// # Usage
//
//	run, err := log.NewRunLogger(log.RunOptions{
//	    FilePath: "/var/log/imgopt.log",
//	    Console:  os.Stderr,
//	    Verbose:  false,
//	})
//	if err != nil {
//	    return err
//	}
//	defer run.Close()
//
//	run.Logger.Info("processing", "site", "/var/www/example")
//
// Loggers are passed explicitly to every component; packages never rely on
// slog.Default being configured.
package log
