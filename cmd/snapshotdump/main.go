package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"golang.org/x/sync/errgroup"

	"github.com/JetBrains/intellij-plugins-sub025/internal/envutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/logutil"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/snapshot"
	"github.com/JetBrains/intellij-plugins-sub025/internal/storageprovider"
	"github.com/JetBrains/intellij-plugins-sub025/internal/storageutil"
)

const numWorkers = 16

// dump writes the snapshot stored under objectName to root as a JSON array
// of wire events. Snapshots already dumped are skipped.
func dump(ctx context.Context, h storageutil.ObjectHandler, root, objectName string) (bool, error) {
	parts := strings.Split(strings.Trim(objectName, "/"), "/")
	if len(parts) != 2 {
		return false, fmt.Errorf("invalid snapshot path %q", objectName)
	}
	dirPath := filepath.Join(root, parts[0])
	path := filepath.Join(dirPath, parts[1]+".json")

	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	events, err := snapshot.Read(ctx, h, objectName)
	if err != nil {
		return false, fmt.Errorf("%s: %w", objectName, err)
	}

	raw := make([]sample.RawEvent, 0, len(events))
	for _, e := range events {
		raw = append(raw, sample.FromEvent(e))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, b, 0o644)
}

func main() {
	args := os.Args[1:]
	if len(args) != 2 {
		fmt.Println("./snapshotdump <file of snapshot paths> <destination directory>")
		return
	}

	logutil.ConfigureLogger(envutil.GetEnvOrFallback("LOG_LEVEL", "info"))

	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, envutil.GetEnvOrFallback("SNAPSHOTS_BUCKET", "file:///var/lib/profiler-snapshots"))
	if err != nil {
		log.Fatal().Err(err).Msg("can't open snapshots bucket")
	}
	defer bucket.Close()
	h := &storageprovider.Blob{Bucket: bucket}

	objectPathList := args[0]
	destination := args[1]
	file, err := os.Open(objectPathList)
	if err != nil {
		log.Fatal().Err(err).Msg("can't open snapshot list")
	}
	defer file.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		objectName := scanner.Text()
		if objectName == "" {
			continue
		}
		g.Go(func() error {
			written, err := dump(gctx, h, destination, objectName)
			switch {
			case errors.Is(err, storageutil.ErrObjectNotFound):
				log.Warn().Str("snapshot", objectName).Msg("snapshot not found")
				return nil
			case err != nil:
				return err
			case written:
				log.Info().Str("snapshot", objectName).Msg("snapshot dumped")
			}
			return nil
		})
	}

	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("can't read snapshot list")
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("can't dump snapshots")
	}
}
