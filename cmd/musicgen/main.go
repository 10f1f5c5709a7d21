package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"sampler/internal/infra"
	"sampler/internal/jobs"
	"sampler/internal/providers/music"
	"sampler/pkg/zip"
)

func main() {
	var (
		promptFlag       string
		styleFlag        string
		titleFlag        string
		negativeFlag     string
		modelFlag        string
		vocalFlag        string
		customFlag       bool
		instrumentalFlag bool
		intervalFlag     time.Duration
		attemptsFlag     int
		zipFlag          string
	)
	flag.StringVar(&promptFlag, "prompt", "", "description, or lyrics in custom mode")
	flag.StringVar(&styleFlag, "style", "", "style tags (custom mode)")
	flag.StringVar(&titleFlag, "title", "", "track title (custom mode)")
	flag.StringVar(&negativeFlag, "negative-tags", "", "styles to avoid")
	flag.StringVar(&modelFlag, "model", string(music.DefaultModel), "model (V3_5, V4, V4_5)")
	flag.StringVar(&vocalFlag, "vocal", "", "vocal gender (m or f)")
	flag.BoolVar(&customFlag, "custom", false, "use custom mode")
	flag.BoolVar(&instrumentalFlag, "instrumental", false, "generate without vocals")
	flag.DurationVar(&intervalFlag, "interval", music.DefaultPollInterval, "wait between status checks")
	flag.IntVar(&attemptsFlag, "attempts", music.DefaultMaxAttempts, "maximum status checks")
	flag.StringVar(&zipFlag, "zip", "", "write the finished tracks to this zip file")
	flag.Parse()

	infra.LoadDotEnv()
	logger := infra.NewLogger("cli").With().Str("cmd", "musicgen").Logger()

	req, err := buildRequest(requestFlags{
		prompt:       promptFlag,
		style:        styleFlag,
		title:        titleFlag,
		negativeTags: negativeFlag,
		model:        modelFlag,
		vocal:        vocalFlag,
		custom:       customFlag,
		instrumental: instrumentalFlag,
	})
	if err != nil {
		fail("%v", err)
	}

	client, err := music.NewClient(music.Options{
		APIKey:      os.Getenv("MUSIC_API_KEY"),
		BaseURL:     os.Getenv("MUSIC_BASE_URL"),
		CallbackURL: os.Getenv("MUSIC_CALLBACK_URL"),
		Logger:      &logger,
	})
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	artifacts, err := client.GenerateAndWait(ctx, req, music.PollOptions{
		Interval:    intervalFlag,
		MaxAttempts: attemptsFlag,
		OnStatus: func(s music.Status) {
			fmt.Fprintf(os.Stderr, "attempt %d: %s (%s)\n", s.Attempt, s.State, s.Raw)
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fail("interrupted")
		}
		fail("generation failed: %v", err)
	}

	for i, a := range artifacts {
		fmt.Printf("%d. %s [%s] %s\n   %s\n", i+1, a.Title, music.FormatDuration(a.Duration), a.Tags, a.URL)
	}

	if zipFlag == "" {
		return
	}
	assets, err := jobs.NewArchiver(nil, nil, &logger).Assets(ctx, uuid.NewString(), artifacts)
	if err != nil {
		fail("download tracks: %v", err)
	}
	f, err := os.Create(zipFlag)
	if err != nil {
		fail("create %s: %v", zipFlag, err)
	}
	if err := zip.Write(f, assets); err != nil {
		_ = f.Close()
		fail("write %s: %v", zipFlag, err)
	}
	if err := f.Close(); err != nil {
		fail("close %s: %v", zipFlag, err)
	}
	fmt.Printf("saved %d tracks to %s\n", len(artifacts), zipFlag)
}

type requestFlags struct {
	prompt, style, title, negativeTags string
	model, vocal                       string
	custom, instrumental               bool
}

// buildRequest parses the flags and applies the same checks the API runs
// before anything is sent to the provider.
func buildRequest(f requestFlags) (music.GenerationRequest, error) {
	model, err := music.ParseModel(f.model)
	if err != nil {
		return music.GenerationRequest{}, err
	}
	vocal, err := music.ParseVocalGender(f.vocal)
	if err != nil {
		return music.GenerationRequest{}, err
	}
	req := music.GenerationRequest{
		Prompt:       f.prompt,
		Style:        f.style,
		Title:        f.title,
		NegativeTags: f.negativeTags,
		CustomMode:   f.custom,
		Instrumental: f.instrumental,
		Model:        model,
		VocalGender:  vocal,
	}
	if err := req.Validate(); err != nil {
		return music.GenerationRequest{}, err
	}
	return req, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
