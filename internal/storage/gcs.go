package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"videoscribe/internal/sampler"
)

// GCSArchive keeps a copy of each analysis (frames plus description) in a
// bucket, under <prefix>/<videoName>/. Optional; the pipeline runs without it.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSArchive(ctx context.Context, bucket, prefix string) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSArchive{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (a *GCSArchive) Close() error {
	return a.client.Close()
}

func (a *GCSArchive) Store(ctx context.Context, videoName string, frames []sampler.Frame, description string) error {
	for _, frame := range frames {
		name := path.Join(a.prefix, videoName, fmt.Sprintf("frame_%04d.jpg", frame.Index))
		if err := a.writeObject(ctx, name, frame.Data, "image/jpeg"); err != nil {
			return fmt.Errorf("archive frame %d: %w", frame.Index, err)
		}
	}

	name := path.Join(a.prefix, videoName, "description.txt")
	if err := a.writeObject(ctx, name, []byte(description), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("archive description: %w", err)
	}

	return nil
}

// List returns the video names that have archived analyses.
func (a *GCSArchive) List(ctx context.Context) ([]string, error) {
	bkt := a.client.Bucket(a.bucket)
	query := &storage.Query{
		Prefix:    a.prefix + "/",
		Delimiter: "/",
	}

	var names []string
	it := bkt.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list archives: %w", err)
		}

		if attrs.Prefix == "" {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, a.prefix+"/"), "/")
		names = append(names, name)
	}

	return names, nil
}

func (a *GCSArchive) writeObject(ctx context.Context, name string, data []byte, contentType string) error {
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", name, err)
	}
	return nil
}
