package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	store     *Store
	blobDir   string
	now       time.Time
	miniredis *miniredis.Miniredis
}

func newFixture(t *testing.T, useRedis bool) *storeFixture {
	t.Helper()

	blobDir := t.TempDir()
	blobs, err := NewLocalBlobs(blobDir)
	require.NoError(t, err)

	f := &storeFixture{blobDir: blobDir, now: time.Now()}

	var index Index = NewMemoryIndex()
	if useRedis {
		f.miniredis = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: f.miniredis.Addr()})
		t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup
		index = NewRedisIndex(client)
	}

	f.store = NewStore(blobs, index, time.Hour, t.TempDir())
	f.store.now = func() time.Time { return f.now }

	return f
}

func writeFiles(t *testing.T, contents map[string]string) (string, []string) {
	t.Helper()

	dir := t.TempDir()
	var files []string

	for name, body := range contents {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		files = append(files, path)
	}

	return dir, files
}

func blobCount(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	return len(entries)
}

func forEachIndex(t *testing.T, fn func(t *testing.T, f *storeFixture)) {
	for _, name := range []string{"memory", "redis"} {
		t.Run(name, func(t *testing.T) {
			fn(t, newFixture(t, name == "redis"))
		})
	}
}

func TestPackage_EmptyResult(t *testing.T) {
	forEachIndex(t, func(t *testing.T, f *storeFixture) {
		a, err := f.store.Package(context.Background(), nil, PackageOptions{})

		assert.Nil(t, a)
		assert.True(t, errors.Is(err, ErrEmptyResult))
		assert.Equal(t, 0, blobCount(t, f.blobDir))
	})
}

func TestPackage_OpenStreamsZipThenDestroys(t *testing.T) {
	forEachIndex(t, func(t *testing.T, f *storeFixture) {
		ctx := context.Background()
		srcDir, files := writeFiles(t, map[string]string{"img-000.png": "first", "img-001.png": "second"})

		a, err := f.store.Package(ctx, files, PackageOptions{DownloadName: "images.zip", Sources: []string{srcDir}})
		require.NoError(t, err)

		assert.Equal(t, StateReady, a.State)
		assert.Equal(t, 2, a.FileCount)
		assert.Equal(t, "images.zip", a.DownloadName)
		assert.Equal(t, f.now.UTC().Add(time.Hour), a.ExpiresAt)

		dl, err := f.store.Open(ctx, a.ID)
		require.NoError(t, err)

		data, err := io.ReadAll(dl)
		require.NoError(t, err)
		require.NoError(t, dl.Close())

		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)
		require.Len(t, zr.File, 2)

		got := map[string]string{}
		for _, zf := range zr.File {
			assert.Equal(t, zip.Deflate, zf.Method)
			rc, err := zf.Open()
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			rc.Close() //nolint:errcheck,gosec // test
			got[zf.Name] = string(body)
		}

		assert.Equal(t, map[string]string{"img-000.png": "first", "img-001.png": "second"}, got)
		assert.Equal(t, 0, blobCount(t, f.blobDir), "blob removed after download")
		assert.NoDirExists(t, srcDir, "sources removed after download")

		_, err = f.store.Open(ctx, a.ID)
		assert.True(t, errors.Is(err, ErrNotFound), "second open must fail")
	})
}

func TestOpen_AbandonedDownloadStillDestroys(t *testing.T) {
	forEachIndex(t, func(t *testing.T, f *storeFixture) {
		ctx := context.Background()
		_, files := writeFiles(t, map[string]string{"a.csv": "1,2,3"})

		a, err := f.store.Package(ctx, files, PackageOptions{})
		require.NoError(t, err)

		dl, err := f.store.Open(ctx, a.ID)
		require.NoError(t, err)

		// client went away after a few bytes
		buf := make([]byte, 4)
		_, err = dl.Read(buf)
		require.NoError(t, err)
		require.NoError(t, dl.Close())
		require.NoError(t, dl.Close(), "close is idempotent")

		assert.Equal(t, 0, blobCount(t, f.blobDir))

		_, err = f.store.Open(ctx, a.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestOpen_ConcurrentClaimsOnlyOneWins(t *testing.T) {
	forEachIndex(t, func(t *testing.T, f *storeFixture) {
		ctx := context.Background()
		_, files := writeFiles(t, map[string]string{"a.txt": "hello"})

		a, err := f.store.Package(ctx, files, PackageOptions{})
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup

		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				dl, err := f.store.Open(ctx, a.ID)
				if err != nil {
					assert.True(t, errors.Is(err, ErrNotFound))
					return
				}

				wins.Add(1)
				io.Copy(io.Discard, dl) //nolint:errcheck,gosec // test
				dl.Close()              //nolint:errcheck,gosec // test
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestOpen_UnknownAndMalformedIDs(t *testing.T) {
	forEachIndex(t, func(t *testing.T, f *storeFixture) {
		_, err := f.store.Open(context.Background(), "8a5e9f1c-3b2d-4c6e-9f0a-1b2c3d4e5f60")
		assert.True(t, errors.Is(err, ErrNotFound))

		_, err = f.store.Open(context.Background(), "../../etc/passwd")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestOpen_ExpiredIsNotFound(t *testing.T) {
	forEachIndex(t, func(t *testing.T, f *storeFixture) {
		ctx := context.Background()
		_, files := writeFiles(t, map[string]string{"a.txt": "hello"})

		a, err := f.store.Package(ctx, files, PackageOptions{})
		require.NoError(t, err)

		f.now = f.now.Add(2 * time.Hour)

		_, err = f.store.Open(ctx, a.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, 0, blobCount(t, f.blobDir))
	})
}

func TestSweepExpired(t *testing.T) {
	forEachIndex(t, func(t *testing.T, f *storeFixture) {
		ctx := context.Background()

		oldDir, oldFiles := writeFiles(t, map[string]string{"old.txt": "old"})
		old, err := f.store.Package(ctx, oldFiles, PackageOptions{Sources: []string{oldDir}})
		require.NoError(t, err)

		f.now = f.now.Add(45 * time.Minute)

		_, newFiles := writeFiles(t, map[string]string{"new.txt": "new"})
		fresh, err := f.store.Package(ctx, newFiles, PackageOptions{})
		require.NoError(t, err)

		f.now = f.now.Add(30 * time.Minute)

		swept, err := f.store.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, swept)
		assert.NoDirExists(t, oldDir)
		assert.Equal(t, 1, blobCount(t, f.blobDir))

		_, err = f.store.Open(ctx, old.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		dl, err := f.store.Open(ctx, fresh.ID)
		require.NoError(t, err)
		require.NoError(t, dl.Close())
	})
}

func TestUniqueName(t *testing.T) {
	used := map[string]int{}

	assert.Equal(t, "a.png", uniqueName(used, "a.png"))
	assert.Equal(t, "a-1.png", uniqueName(used, "a.png"))
	assert.Equal(t, "a-2.png", uniqueName(used, "a.png"))
	assert.Equal(t, "b.png", uniqueName(used, "b.png"))
}

type fakeJanitor struct {
	calls  int
	maxAge time.Duration
}

func (j *fakeJanitor) RemoveStale(maxAge time.Duration) (int, error) {
	j.calls++
	j.maxAge = maxAge
	return 0, nil
}

func TestSweeper_SweepOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, files := writeFiles(t, map[string]string{"a.txt": "x"})
	_, err := f.store.Package(ctx, files, PackageOptions{})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)

	janitor := &fakeJanitor{}
	s := NewSweeper(f.store, janitor, time.Minute, time.Hour)
	s.SweepOnce(ctx)

	assert.Equal(t, 0, blobCount(t, f.blobDir))
	assert.Equal(t, 1, janitor.calls)
	assert.Equal(t, time.Hour, janitor.maxAge)
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	f := newFixture(t, false)
	s := NewSweeper(f.store, nil, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestLocalBlobs_RejectsTraversal(t *testing.T) {
	b, err := NewLocalBlobs(t.TempDir())
	require.NoError(t, err)

	err = b.Put(context.Background(), "../escape.zip", bytes.NewReader(nil), 0)
	assert.Error(t, err)
}

func TestIndexes_ExpiredIDsRespectSubSecondExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup

	indexes := map[string]Index{
		"memory": NewMemoryIndex(),
		"redis":  NewRedisIndex(client),
	}

	base := time.Unix(1_700_000_000, 0)

	for name, index := range indexes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, index.Put(ctx, Artifact{ID: "a-" + name, ExpiresAt: base.Add(800 * time.Millisecond)}))

			ids, err := index.ExpiredIDs(ctx, base.Add(100*time.Millisecond))
			require.NoError(t, err)
			assert.Empty(t, ids, "not expired within the same second")

			ids, err = index.ExpiredIDs(ctx, base.Add(800*time.Millisecond))
			require.NoError(t, err)
			assert.Equal(t, []string{"a-" + name}, ids)
		})
	}
}
