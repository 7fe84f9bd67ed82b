package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"filebox/internal/blobstore"
	"filebox/internal/models"
)

func writeOrphan(t *testing.T, env *testEnv, data string, commit bool) string {
	t.Helper()
	ctx := context.Background()
	handle, err := env.blobs.BeginWrite(ctx, models.NewBlob{Filename: "orphan.bin", Owner: "us-alice"})
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if err := handle.WriteChunk(ctx, []byte(data)); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if commit {
		if _, err := handle.Commit(ctx); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	return handle.ID()
}

func futureClock(d time.Duration) func() time.Time {
	return func() time.Time { return time.Now().Add(d) }
}

func TestSweepDryRunReportsOrphans(t *testing.T) {
	env := newTestEnv(t, Options{Now: futureClock(time.Hour)})
	ctx := context.Background()

	kept, err := env.svc.Upload(ctx, "us-alice", plainInput("kept.txt", []byte("keep")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	committed := writeOrphan(t, env, "orphan", true)
	pending := writeOrphan(t, env, "half", false)

	result, err := env.svc.Sweep(ctx, SweepOptions{GracePeriod: 30 * time.Minute})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !result.DryRun || result.DeletedCount != 0 {
		t.Fatalf("dry run deleted blobs: %+v", result)
	}
	if result.ScannedCount != 3 || result.CandidateCount != 2 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	for _, id := range []string{committed, pending} {
		if !containsID(result.Candidates, id) {
			t.Fatalf("candidate %s missing from %v", id, result.Candidates)
		}
	}
	if containsID(result.Candidates, kept.BlobID) {
		t.Fatalf("referenced blob reported as candidate")
	}

	all, err := env.blobs.ListBlobs(ctx, blobstore.ListQuery{IncludePending: true})
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("dry run removed blobs: %d left", len(all))
	}
}

func TestSweepApplyDeletesOnlyUnreferenced(t *testing.T) {
	env := newTestEnv(t, Options{Now: futureClock(time.Hour)})
	ctx := context.Background()

	kept, err := env.svc.Upload(ctx, "us-alice", plainInput("kept.txt", []byte("keep")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	orphan := writeOrphan(t, env, "orphan", true)
	writeOrphan(t, env, "half", false)

	result, err := env.svc.Sweep(ctx, SweepOptions{BatchSize: 1, Apply: true})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.DryRun || result.CandidateCount != 2 || result.DeletedCount != 2 || result.FailedCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ReclaimedBytes != int64(len("orphan")) {
		t.Fatalf("reclaimed = %d, want %d", result.ReclaimedBytes, len("orphan"))
	}
	if _, err := env.blobs.Stat(ctx, orphan); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("orphan still present: %v", err)
	}
	if got := downloadAll(t, env.svc, "us-alice", kept.BlobID); string(got) != "keep" {
		t.Fatalf("referenced blob damaged: %q", got)
	}
	all, err := env.blobs.ListBlobs(ctx, blobstore.ListQuery{IncludePending: true})
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	if len(all) != 1 || all[0].ID != kept.BlobID {
		t.Fatalf("unexpected remaining blobs: %+v", all)
	}
}

func TestSweepRespectsGracePeriod(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	writeOrphan(t, env, "young", true)

	result, err := env.svc.Sweep(ctx, SweepOptions{GracePeriod: time.Hour, Apply: true})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.ScannedCount != 0 || result.DeletedCount != 0 {
		t.Fatalf("young blob must survive: %+v", result)
	}
}

func TestSweepRejectsNegativeGrace(t *testing.T) {
	env := newTestEnv(t, Options{})
	if _, err := env.svc.Sweep(context.Background(), SweepOptions{GracePeriod: -time.Second}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
