package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"snotify/internal/app"
	"snotify/internal/config"
	"snotify/pkg/channel"
	"snotify/pkg/notify"
)

const usage = `usage: snotify <command> [flags]

commands:
  send   [-config f] [-channel n] [-subject s] [-to r1,r2] [-strict] [-broadcast] text...
  serve  [-config f]
  check  [-config f]
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "send":
		return runSend(ctx, args[1:], stdout, stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "check":
		err = runCheck(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	return 0
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "./snotify.yaml", "path to config (yaml or json)")
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := app.New(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

func runCheck(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.NewManager(*cfgPath).Parse()
	if err != nil {
		return err
	}
	if err := app.CheckConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "config ok: %d channels, fallback order [%s], %d schedules\n",
		len(cfg.Channels), strings.Join(cfg.Dispatch.FallbackOrder, ", "), len(cfg.Schedules))
	return nil
}

func runSend(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath   = configFlag(fs)
		chName    = fs.String("channel", "", "send through this channel only")
		subject   = fs.String("subject", "", "message subject (email)")
		to        = fs.String("to", "", "comma-separated recipients overriding the channel defaults")
		strict    = fs.Bool("strict", false, "fail when every fallback channel fails")
		broadcast = fs.Bool("broadcast", false, "send through every channel")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(stderr, "send: message text is required")
		return 2
	}

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	defer a.Close()

	var opts []notify.SendOption
	if *chName != "" {
		opts = append(opts, notify.WithChannel(*chName))
	}
	if *to != "" {
		opts = append(opts, notify.WithRecipients(channel.Addresses(splitList(*to)...)...))
	}
	if *strict {
		opts = append(opts, notify.WithStrict(true))
	}

	msg := channel.Message{Text: text, Subject: *subject}
	var out *notify.Outcome
	if *broadcast {
		out, err = a.Broadcast(ctx, msg, opts...)
	} else {
		out, err = a.Send(ctx, msg, opts...)
	}
	printOutcome(stdout, out)
	if err != nil {
		fmt.Fprintln(stderr, "send failed:", err)
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printOutcome(w io.Writer, out *notify.Outcome) {
	if out == nil {
		return
	}
	for _, at := range out.Attempts {
		status := "ok"
		if at.Err != nil {
			status = "failed: " + at.Err.Error()
		}
		fmt.Fprintf(w, "  %-12s %s (%s)\n", at.Channel, status, at.Duration.Round(time.Millisecond))
	}
	for _, name := range out.Skipped {
		fmt.Fprintf(w, "  %-12s skipped (not registered)\n", name)
	}
	if out.OK() {
		fmt.Fprintf(w, "delivered via %s [%s, id %s]\n", out.Delivered, out.Mode, out.ID)
		return
	}
	fmt.Fprintf(w, "not delivered [%s, id %s]\n", out.Mode, out.ID)
}
