package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sampler/internal/infra"
	"sampler/internal/providers/music"
	"sampler/internal/storage"
	"sampler/pkg/zip"
)

const (
	maxTrackBytes       = 64 << 20
	archiveParallelism  = 3
	archiveMetadataName = "tracks.json"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archiver downloads the audio of finished jobs, caching it in the file store.
type Archiver struct {
	store  *storage.FileStore
	client *http.Client
	logger *infra.Logger
}

// NewArchiver builds an archiver. A nil store disables caching.
func NewArchiver(store *storage.FileStore, client *http.Client, logger *infra.Logger) *Archiver {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Archiver{store: store, client: client, logger: logger}
}

type trackEntry struct {
	File     string `json:"file"`
	Title    string `json:"title"`
	Tags     string `json:"tags,omitempty"`
	Duration string `json:"duration"`
	Model    string `json:"model,omitempty"`
	Source   string `json:"source_url"`
}

// Assets returns one audio file per artifact plus a tracks.json index, in
// artifact order.
func (a *Archiver) Assets(ctx context.Context, jobID string, artifacts []music.Artifact) ([]zip.Asset, error) {
	assets := make([]zip.Asset, len(artifacts))
	entries := make([]trackEntry, len(artifacts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(archiveParallelism)
	for i, art := range artifacts {
		name := trackFilename(i, art)
		entries[i] = trackEntry{
			File:     name,
			Title:    art.Title,
			Tags:     art.Tags,
			Duration: music.FormatDuration(art.Duration),
			Model:    art.ModelName,
			Source:   art.URL,
		}
		g.Go(func() error {
			data, err := a.track(gctx, jobID, name, art.URL)
			if err != nil {
				return fmt.Errorf("jobs: track %d: %w", i+1, err)
			}
			assets[i] = zip.Asset{Filename: name, MIME: "audio/mpeg", Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("jobs: encode track index: %w", err)
	}
	return append(assets, zip.Asset{Filename: archiveMetadataName, MIME: "application/json", Data: index}), nil
}

func (a *Archiver) track(ctx context.Context, jobID, name, url string) ([]byte, error) {
	key := path.Join("music", jobID, name)
	if a.store.Exists(key) {
		return a.store.Read(ctx, key)
	}
	data, err := a.download(ctx, url)
	if err != nil {
		return nil, err
	}
	if a.store != nil {
		if _, err := a.store.Write(ctx, key, data); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("jobs: cache track failed")
		}
	}
	return data, nil
}

func (a *Archiver) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTrackBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if len(data) > maxTrackBytes {
		return nil, fmt.Errorf("download: track exceeds %d bytes", maxTrackBytes)
	}
	return data, nil
}

func trackFilename(i int, art music.Artifact) string {
	title := strings.Trim(unsafeName.ReplaceAllString(art.Title, "_"), "_.")
	if title == "" {
		title = "track"
	}
	if len(title) > 60 {
		title = title[:60]
	}
	return fmt.Sprintf("%02d-%s.mp3", i+1, title)
}
