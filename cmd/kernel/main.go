// kernel boots the simulated multi-tasking kernel core: it reads an
// optional flattened device tree blob and runs the driver binder over it
// (this command registers no drivers, so no node is bound), starts pid 1,
// and runs until a shutdown syscall or a timeout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/badgeos-go/kernel/internal/boot"
	"github.com/badgeos-go/kernel/internal/kctx"
	"github.com/badgeos-go/kernel/internal/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("kernel", flag.ContinueOnError)
	dtbPath := fs.String("dtb", "", "path to a flattened device tree blob")
	timeout := fs.Duration("timeout", 5*time.Second, "how long to run before giving up on a shutdown request")
	debug := fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *debug {
		log.LogLevel.Set(log.Debug)
	}

	logger := log.NewFormattedLogger(os.Stderr)
	log.SetDefault(logger)

	opts := []boot.OptionFn{
		boot.WithLogger(logger),
		boot.WithInitProgram([]string{"/sbin/init"}, initEntry(logger)),
	}

	if *dtbPath != "" {
		raw, err := os.ReadFile(*dtbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "reading device tree:", err)
			return 1
		}
		opts = append(opts, boot.WithDeviceTree(raw))
	}

	k, err := boot.New(opts...)
	if err != nil {
		logger.Error(err.Error())
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger.Info("BadgeOS starting...")

	if err := k.Run(ctx, time.Millisecond); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error(err.Error())
		return 1
	}

	return 0
}

// initEntry stands in for /sbin/init until this port has a real ELF
// loader: it gives the scheduler something to run so boot's wiring is
// exercised end to end, the same role the source's bundled elf_rom plays
// before a real filesystem-backed loader exists.
func initEntry(logger *log.Logger) kctx.EntryPoint {
	return func(kctx.Word) {
		logger.Info("init: started")
	}
}
