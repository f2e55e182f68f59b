package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const createdAtKey = "created-at"

// GCSStore keeps one JSON object per job under <prefix>/<id>.json. Writes use
// generation preconditions so a record is created once and finished once even
// with several servers sharing the bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

var _ Store = &GCSStore{}

func NewGCSStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs job store requires a bucket")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Create(ctx context.Context, job Job) error {
	if job.Status != StatusProcessing {
		return &TransitionError{ID: job.ID, From: "", To: job.Status}
	}
	obj := s.bucket.Object(objectName(s.prefix, job.ID)).If(storage.Conditions{DoesNotExist: true})
	err := s.write(ctx, obj, job)
	if preconditionFailed(err) {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	if err != nil {
		return &JobStoreUnavailableError{Op: "create " + job.ID, Err: err}
	}
	return nil
}

func (s *GCSStore) Finish(ctx context.Context, id string, outcome Outcome) (Job, error) {
	current, generation, err := s.read(ctx, id)
	if err != nil {
		return Job{}, err
	}
	next, err := current.apply(outcome)
	if err != nil {
		return Job{}, err
	}
	obj := s.bucket.Object(objectName(s.prefix, id)).If(storage.Conditions{GenerationMatch: generation})
	err = s.write(ctx, obj, next)
	if preconditionFailed(err) {
		return Job{}, fmt.Errorf("%w: job %s changed concurrently", ErrInvalidTransition, id)
	}
	if err != nil {
		return Job{}, &JobStoreUnavailableError{Op: "finish " + id, Err: err}
	}
	return next, nil
}

func (s *GCSStore) Get(ctx context.Context, id string) (Job, error) {
	job, _, err := s.read(ctx, id)
	return job, err
}

func (s *GCSStore) List(ctx context.Context, limit int) ([]Job, error) {
	type listed struct {
		id      string
		created time.Time
	}
	var found []listed
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: listPrefix(s.prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, &JobStoreUnavailableError{Op: "list", Err: err}
		}
		id, ok := idFromObject(s.prefix, attrs.Name)
		if !ok {
			continue
		}
		found = append(found, listed{id: id, created: createdAt(attrs)})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].created.Equal(found[j].created) {
			return found[i].created.After(found[j].created)
		}
		return found[i].id > found[j].id
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	out := make([]Job, 0, len(found))
	for _, item := range found {
		job, _, err := s.read(ctx, item.id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *GCSStore) read(ctx context.Context, id string) (Job, int64, error) {
	r, err := s.bucket.Object(objectName(s.prefix, id)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Job{}, 0, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return Job{}, 0, &JobStoreUnavailableError{Op: "read " + id, Err: err}
	}
	defer r.Close()

	var job Job
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		return Job{}, 0, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, r.Attrs.Generation, nil
}

func (s *GCSStore) write(ctx context.Context, obj *storage.ObjectHandle, job Job) error {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{createdAtKey: job.CreatedAt.UTC().Format(time.RFC3339Nano)}
	if err := json.NewEncoder(w).Encode(job); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func objectName(prefix, id string) string {
	if prefix == "" {
		return id + ".json"
	}
	return path.Join(prefix, id+".json")
}

func listPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func idFromObject(prefix, name string) (string, bool) {
	rest := strings.TrimPrefix(name, listPrefix(prefix))
	if rest == name && prefix != "" {
		return "", false
	}
	if strings.Contains(rest, "/") || !strings.HasSuffix(rest, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(rest, ".json")
	return id, id != ""
}

// createdAt prefers the job creation time recorded in object metadata, since
// the object's own creation time moves with every new generation.
func createdAt(attrs *storage.ObjectAttrs) time.Time {
	if value, ok := attrs.Metadata[createdAtKey]; ok {
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return t
		}
	}
	return attrs.Created
}

func preconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return status.Code(err) == codes.FailedPrecondition
}
