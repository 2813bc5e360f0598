package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"screenqa/internal/app"
	"screenqa/internal/capture"
)

func main() {
	var (
		cfgPath      string
		interval     int
		providers    string
		notify       bool
		emailTo      string
		region       string
		selectRegion bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to config (json or yaml); empty uses built-in defaults")
	flag.IntVar(&interval, "interval", 0, "seconds between captures")
	flag.StringVar(&providers, "providers", "", "comma-separated provider ids, e.g. gemini,chatgpt")
	flag.BoolVar(&notify, "notify", false, "enable desktop notifications")
	flag.StringVar(&emailTo, "email", "", "send results to this address")
	flag.StringVar(&region, "region", "", "capture region as top,left,width,height")
	flag.BoolVar(&selectRegion, "select-region", false, "prompt for two corners of the capture region")
	flag.Parse()

	opts := app.Options{
		ConfigPath: cfgPath,
		Interval:   interval,
		Providers:  splitList(providers),
		Notify:     notify,
		EmailTo:    emailTo,
	}
	switch {
	case selectRegion:
		r, err := promptRegion(os.Stdin, os.Stdout)
		if err != nil {
			fatal("region selection", err)
		}
		opts.Region = &r
	case region != "":
		r, err := capture.ParseRegion(region)
		if err != nil {
			fatal("invalid -region", err)
		}
		opts.Region = &r
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(opts)
	if err != nil {
		fatal("fatal", err)
	}
	if err := a.Start(ctx); err != nil {
		fatal("fatal start", err)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	runErr := a.Err()

	// A second interrupt during shutdown ends the process immediately.
	cancel()
	stopCtx, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()
	stopCtx, timeout := context.WithTimeout(stopCtx, time.Minute)
	defer timeout()
	_ = a.Stop(stopCtx)

	if runErr != nil {
		fatal("fatal", runErr)
	}
}

// promptRegion asks for two opposite corners and normalizes them.
func promptRegion(in io.Reader, out io.Writer) (capture.Region, error) {
	sc := bufio.NewScanner(in)
	ask := func(label string) (capture.Point, error) {
		for {
			fmt.Fprintf(out, "%s corner (x,y): ", label)
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return capture.Point{}, err
				}
				return capture.Point{}, io.ErrUnexpectedEOF
			}
			p, err := capture.ParsePoint(sc.Text())
			if err == nil {
				return p, nil
			}
			fmt.Fprintf(out, "  %v\n", err)
		}
	}
	a, err := ask("First")
	if err != nil {
		return capture.Region{}, err
	}
	b, err := ask("Opposite")
	if err != nil {
		return capture.Region{}, err
	}
	r := capture.FromCorners(a, b)
	if err := r.Validate(); err != nil {
		return capture.Region{}, err
	}
	fmt.Fprintf(out, "Selected region: %s\n", r)
	return r, nil
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

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
