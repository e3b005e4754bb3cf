package storageutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/google/uuid"
	"github.com/phayes/freeport"
	"github.com/pierrec/lz4/v4"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"

	"github.com/JetBrains/intellij-plugins-sub025/internal/storageprovider"
	"github.com/JetBrains/intellij-plugins-sub025/internal/storageutil"
)

const bucketName = "snapshots"

var (
	gcsServer      *fakestorage.Server
	badgerDB       *badger.DB
	fileBlobBucket *blob.Bucket
)

type Snapshot struct {
	Durations []int `json:"durations"`
	Stacks    []int `json:"stacks"`
}

func TestMain(m *testing.M) {
	port, err := freeport.GetFreePort()
	if err != nil {
		log.Fatalf("no free port found: %v", err)
	}
	publicHost := fmt.Sprintf("127.0.0.1:%d", port)
	gcsServer, err = fakestorage.NewServerWithOptions(fakestorage.Options{
		PublicHost: publicHost,
		Host:       "127.0.0.1",
		Port:       uint16(port),
		Scheme:     "http",
	})
	if err != nil {
		log.Fatalf("couldn't set up gcs server: %v", err)
	}
	os.Setenv("STORAGE_EMULATOR_HOST", publicHost)
	gcsServer.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: bucketName})

	badgerDB, err = badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("couldn't create an in-memory badgerdb: %s", err.Error())
	}

	temporaryDirectory, err := os.MkdirTemp(os.TempDir(), "profiler-snapshots-*")
	if err != nil {
		log.Fatalf("couldn't create a temporary directory: %s", err.Error())
	}
	fileBlobBucket, err = blob.OpenBucket(context.Background(), "file://localhost/"+temporaryDirectory)
	if err != nil {
		log.Fatalf("couldn't open a local filesystem bucket: %s", err.Error())
	}

	code := m.Run()

	if err := fileBlobBucket.Close(); err != nil {
		log.Printf("couldn't close the local filesystem bucket: %s", err.Error())
	}
	if err := os.RemoveAll(temporaryDirectory); err != nil {
		log.Printf("couldn't remove the temporary directory: %s", err.Error())
	}
	if err := badgerDB.Close(); err != nil {
		log.Printf("closing in-memory badgerdb: %s", err.Error())
	}
	gcsServer.Stop()

	os.Exit(code)
}

func handlers(t *testing.T) map[string]storageutil.ObjectHandler {
	t.Helper()
	storageClient, err := storage.NewClient(context.Background())
	if err != nil {
		t.Fatalf("we should be able to create a client: %v", err)
	}
	t.Cleanup(func() { _ = storageClient.Close() })
	return map[string]storageutil.ObjectHandler{
		"GCS":    &storageprovider.Gcs{BucketHandle: storageClient.Bucket(bucketName)},
		"Badger": &storageprovider.Badger{DB: badgerDB},
		"Blob":   &storageprovider.Blob{Bucket: fileBlobBucket},
	}
}

func TestCompressedWrite(t *testing.T) {
	ctx := context.Background()
	originalData := Snapshot{
		Durations: []int{10, 20, 30},
		Stacks:    []int{0, 1, 0},
	}
	want, err := json.Marshal(originalData)
	if err != nil {
		t.Fatalf("we should be able to marshal this: %v", err)
	}

	for name, handler := range handlers(t) {
		t.Run(name, func(t *testing.T) {
			objectName := uuid.New().String()
			if err := storageutil.CompressedWrite(ctx, handler, objectName, originalData); err != nil {
				t.Fatalf("we should be able to write: %v", err)
			}

			r, err := handler.Get(ctx, objectName)
			if err != nil {
				t.Fatalf("we should be able to read the object: %v", err)
			}
			defer r.Close()
			if r.Size() <= 0 {
				t.Fatalf("expected a size, got %d", r.Size())
			}
			uncompressedData, err := io.ReadAll(lz4.NewReader(r))
			if err != nil {
				t.Fatalf("we should be able to uncompress the data: %v", err)
			}
			if !bytes.Equal(want, bytes.TrimSpace(uncompressedData)) {
				t.Fatalf("data should be identical: %s %s", want, uncompressedData)
			}
		})
	}
}

func TestUnmarshalCompressed(t *testing.T) {
	ctx := context.Background()
	originalData := []byte(`{"durations":[1,2,3,4],"stacks":[0,0,1,1]}`)

	var compressedData bytes.Buffer
	w := lz4.NewWriter(&compressedData)
	_, _ = w.Write(originalData)
	if err := w.Close(); err != nil {
		t.Fatalf("we should be able to close the writer: %v", err)
	}

	for name, handler := range handlers(t) {
		t.Run(name, func(t *testing.T) {
			objectName := uuid.New().String()
			ow, err := handler.Put(ctx, objectName)
			if err != nil {
				t.Fatalf("we should be able to write an object: %v", err)
			}
			if _, err := ow.Write(compressedData.Bytes()); err != nil {
				t.Fatalf("we should be able to write an object: %v", err)
			}
			if err := ow.Close(); err != nil {
				t.Fatalf("we should be able to write an object: %v", err)
			}

			var snapshot Snapshot
			if err := storageutil.UnmarshalCompressed(ctx, handler, objectName, &snapshot); err != nil {
				t.Fatalf("we should be able to read the object: %v", err)
			}
			uncompressedData, err := json.Marshal(snapshot)
			if err != nil {
				t.Fatalf("we should be able to marshal back to JSON: %v", err)
			}
			if !bytes.Equal(originalData, uncompressedData) {
				t.Fatalf("data should be identical: %v %v", string(originalData), string(uncompressedData))
			}
		})
	}
}

func TestObjectNotFound(t *testing.T) {
	ctx := context.Background()
	for name, handler := range handlers(t) {
		t.Run(name, func(t *testing.T) {
			var snapshot Snapshot
			err := storageutil.UnmarshalCompressed(ctx, handler, uuid.New().String(), &snapshot)
			if !errors.Is(err, storageutil.ErrObjectNotFound) {
				t.Fatalf("expected ErrObjectNotFound, got %v", err)
			}
		})
	}
}
